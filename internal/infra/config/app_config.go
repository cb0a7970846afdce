// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the proxy's HTTP surface.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// ConnectorsConfig groups per-venue connector settings.
type ConnectorsConfig struct {
	Harbor HarborConfig `yaml:"harbor"`
}

// DexConfig selects the venue and carries its connector settings.
type DexConfig struct {
	Name       DexName          `yaml:"name"`
	Connectors ConnectorsConfig `yaml:"connectors"`
}

// AppConfig is the unified proxy configuration sourced from YAML.
type AppConfig struct {
	Environment Environment     `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Dex         DexConfig       `yaml:"dex"`
}

const (
	defaultServerAddr  = ":1958"
	defaultServiceName = "dex-proxy"
)

// Default returns the baseline configuration that YAML documents are decoded over.
func Default() AppConfig {
	cfg := AppConfig{
		Environment: EnvDev,
		Server:      ServerConfig{Addr: defaultServerAddr},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:  "",
			ServiceName:   defaultServiceName,
			OTLPInsecure:  true,
			EnableMetrics: false,
		},
		Dex: DexConfig{
			Name:       DexHarbor,
			Connectors: ConnectorsConfig{Harbor: HarborConfig{}},
		},
	}
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	return Parse(reader)
}

// LoadOrDefault loads configPath when it exists and falls back to Default otherwise. The boolean
// reports whether the file was read.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, bool, error) {
	cfg, err := Load(ctx, configPath)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		def := Default()
		def.normalise()
		if err := def.Validate(); err != nil {
			return AppConfig{}, false, err
		}
		return def, false, nil
	}
	return AppConfig{}, false, err
}

// Parse decodes, normalises and validates YAML configuration from r.
func Parse(r io.Reader) (AppConfig, error) {
	bytes, err := io.ReadAll(r)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) normalise() {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	origins := c.Server.AllowedOrigins[:0]
	for _, origin := range c.Server.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	c.Server.AllowedOrigins = origins
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
	c.Dex.Name = normalizeDexName(string(c.Dex.Name))
	c.Dex.Connectors.Harbor.applyDefaults()
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server addr required")
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		return fmt.Errorf("telemetry serviceName required")
	}

	switch c.Dex.Name {
	case DexHarbor:
		if err := c.Dex.Connectors.Harbor.Validate(); err != nil {
			return fmt.Errorf("dex.connectors.harbor: %w", err)
		}
	case "":
		return fmt.Errorf("dex name required")
	default:
		return fmt.Errorf("dex %q not supported", c.Dex.Name)
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
