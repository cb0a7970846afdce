package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	defaultHarborAPIKeyEnv = "HARBOR_API_KEY"
	defaultEthFromAddrEnv  = "ETH_FROM_ADDR"
	defaultBtcFromAddrEnv  = "BTC_FROM_ADDR"
	defaultHarborTimeout   = 10 * time.Second
	assetETH               = "ETH"
	assetBTC               = "BTC"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// HarborRESTConfig points at Harbor's primary REST API.
type HarborRESTConfig struct {
	BaseURI        string        `yaml:"base_uri" validate:"required,url"`
	APIPath        string        `yaml:"api_path"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
	SessionTimeout time.Duration `yaml:"session_timeout" validate:"gte=0"`
}

// HarborXnodeConfig points at Harbor's secondary xnode service.
type HarborXnodeConfig struct {
	BaseURI string `yaml:"base_uri" validate:"omitempty,url"`
	APIPath string `yaml:"api_path"`
}

// HarborWebsocketConfig advertises Harbor's websocket endpoint to clients.
type HarborWebsocketConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// HarborConfig is the raw connector section. Secrets may be given inline or through the named
// environment variables; ResolveHarbor turns it into HarborSettings.
type HarborConfig struct {
	REST           HarborRESTConfig      `yaml:"rest"`
	Xnode          HarborXnodeConfig     `yaml:"xnode"`
	Websocket      HarborWebsocketConfig `yaml:"websocket"`
	APIKey         string                `yaml:"api_key"`
	APIKeyEnv      string                `yaml:"api_key_env"`
	EthFromAddrEnv string                `yaml:"eth_from_addr_env"`
	BtcFromAddrEnv string                `yaml:"btc_from_addr_env"`
	FromAddresses  map[string]string     `yaml:"from_addresses"`
}

func (c *HarborConfig) applyDefaults() {
	c.REST.BaseURI = strings.TrimSpace(c.REST.BaseURI)
	c.REST.APIPath = strings.TrimSpace(c.REST.APIPath)
	c.Xnode.BaseURI = strings.TrimSpace(c.Xnode.BaseURI)
	c.Xnode.APIPath = strings.TrimSpace(c.Xnode.APIPath)
	c.Websocket.URL = strings.TrimSpace(c.Websocket.URL)
	if c.REST.RequestTimeout == 0 {
		c.REST.RequestTimeout = defaultHarborTimeout
	}
	if c.REST.SessionTimeout == 0 {
		c.REST.SessionTimeout = c.REST.RequestTimeout
	}
	if strings.TrimSpace(c.APIKeyEnv) == "" {
		c.APIKeyEnv = defaultHarborAPIKeyEnv
	}
	if strings.TrimSpace(c.EthFromAddrEnv) == "" {
		c.EthFromAddrEnv = defaultEthFromAddrEnv
	}
	if strings.TrimSpace(c.BtcFromAddrEnv) == "" {
		c.BtcFromAddrEnv = defaultBtcFromAddrEnv
	}
	if len(c.FromAddresses) > 0 {
		normalised := make(map[string]string, len(c.FromAddresses))
		for asset, addr := range c.FromAddresses {
			key := strings.ToUpper(strings.TrimSpace(asset))
			if key == "" {
				continue
			}
			normalised[key] = strings.TrimSpace(addr)
		}
		c.FromAddresses = normalised
	}
}

// Validate checks the connector section.
func (c HarborConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid harbor connector: %w", err)
	}
	return nil
}

// HarborSettings is the resolved, immutable connector configuration consumed by the adapter.
type HarborSettings struct {
	RESTBase       string
	RESTAPIPath    string
	XnodeBase      string
	XnodeAPIPath   string
	APIKey         string
	APIKeyEnv      string
	RequestTimeout time.Duration
	SessionTimeout time.Duration
	WebsocketURL   string

	fromAddresses map[string]string
}

// FromAddresses returns a copy of the non-empty source addresses keyed by asset symbol.
func (s HarborSettings) FromAddresses() map[string]string {
	out := make(map[string]string, len(s.fromAddresses))
	for asset, addr := range s.fromAddresses {
		if addr != "" {
			out[asset] = addr
		}
	}
	return out
}

// FromAddressAssets lists the assets with a configured source address, sorted.
func (s HarborSettings) FromAddressAssets() []string {
	assets := make([]string, 0, len(s.fromAddresses))
	for asset, addr := range s.fromAddresses {
		if addr != "" {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)
	return assets
}

// HasAPIKey reports whether authenticated calls will carry a key.
func (s HarborSettings) HasAPIKey() bool {
	return s.APIKey != ""
}

// LookupFunc reads an environment variable.
type LookupFunc func(name string) string

// ResolveHarbor applies environment fallbacks once: an inline value wins, then the named
// environment variable, else the value stays empty.
func ResolveHarbor(cfg HarborConfig, lookup LookupFunc) HarborSettings {
	if lookup == nil {
		lookup = os.Getenv
	}
	cfg.applyDefaults()

	settings := HarborSettings{
		RESTBase:       cfg.REST.BaseURI,
		RESTAPIPath:    cfg.REST.APIPath,
		XnodeBase:      cfg.Xnode.BaseURI,
		XnodeAPIPath:   cfg.Xnode.APIPath,
		APIKey:         firstNonEmpty(cfg.APIKey, lookup(cfg.APIKeyEnv)),
		APIKeyEnv:      cfg.APIKeyEnv,
		RequestTimeout: cfg.REST.RequestTimeout,
		SessionTimeout: cfg.REST.SessionTimeout,
		WebsocketURL:   cfg.Websocket.URL,
		fromAddresses:  make(map[string]string, len(cfg.FromAddresses)+2),
	}

	settings.fromAddresses[assetETH] = firstNonEmpty(cfg.FromAddresses[assetETH], lookup(cfg.EthFromAddrEnv))
	settings.fromAddresses[assetBTC] = firstNonEmpty(cfg.FromAddresses[assetBTC], lookup(cfg.BtcFromAddrEnv))
	for asset, addr := range cfg.FromAddresses {
		if asset == assetETH || asset == assetBTC {
			continue
		}
		settings.fromAddresses[asset] = addr
	}
	return settings
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
