// Command dexproxy serves a single venue connector behind the dex proxy HTTP and websocket surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/dexproxy/internal/app/dex"
	"github.com/coachpo/dexproxy/internal/infra/adapters/harbor"
	"github.com/coachpo/dexproxy/internal/infra/config"
	httpserver "github.com/coachpo/dexproxy/internal/infra/server/http"
	"github.com/coachpo/dexproxy/internal/telemetry"
)

const (
	defaultConfigPath        = "config/app.yaml"
	proxyLoggerPrefix        = "dexproxy "
	shutdownTimeout          = 30 * time.Second
	apiServerShutdownTimeout = 5 * time.Second
	adapterShutdownTimeout   = 5 * time.Second
	lifecycleShutdownTimeout = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	apiReadHeaderTimeout     = 5 * time.Second
)

func main() {
	cfgPathFlag := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newProxyLogger()

	configPath := resolveConfigPath(cfgPathFlag)

	appCfg, loadedFromFile, err := config.LoadOrDefault(ctx, configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Printf("configuration file not found, using defaults")
	}
	logger.Printf("configuration initialised: env=%s, dex=%s", appCfg.Environment, appCfg.Dex.Name)

	telemetryProvider, err := initTelemetry(ctx, logger, appCfg.Environment, appCfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}

	router := httpserver.New(
		httpserver.WithLogger(newComponentLogger("http ")),
		httpserver.WithAllowedOrigins(appCfg.Server.AllowedOrigins...),
	)
	venue, err := buildVenue(appCfg.Dex, router)
	if err != nil {
		logger.Fatalf("initialise venue: %v", err)
	}
	router.SetRPCHandler(venue)
	dex.RegisterCommon(router, venue)
	logger.Printf("venue routes registered: dex=%s, routes=%d", venue.Name(), len(router.Routes()))

	if err := venue.Start(ctx); err != nil {
		logger.Fatalf("start venue %s: %v", venue.Name(), err)
	}

	var lifecycle conc.WaitGroup

	apiServer := buildAPIServer(appCfg.Server, router)
	startAPIServer(&lifecycle, logger, apiServer)
	logger.Printf("dex proxy listening on %s", apiServer.Addr)

	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		server:     apiServer,
		websockets: router,
		venue:      venue,
		mainCancel: cancel,
		lifecycle:  &lifecycle,
		telemetry:  telemetryProvider,
	})

	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to application configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newProxyLogger() *log.Logger {
	return newComponentLogger(proxyLoggerPrefix)
}

func newComponentLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds)
}

func initTelemetry(ctx context.Context, logger *log.Logger, env config.Environment, cfg config.TelemetryConfig) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	if cfg.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	if cfg.ServiceName != "" {
		telemetryCfg.ServiceName = cfg.ServiceName
	}
	telemetryCfg.Environment = string(env)
	telemetryCfg.OTLPInsecure = cfg.OTLPInsecure
	telemetryCfg.EnableMetrics = cfg.EnableMetrics

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}

	if provider.Enabled() {
		logger.Printf("telemetry initialized: endpoint=%s, service=%s", telemetryCfg.OTLPEndpoint, telemetryCfg.ServiceName)
	} else {
		logger.Printf("telemetry disabled")
	}
	return provider, nil
}

// buildVenue constructs the connector selected by cfg.Name and registers its routes on router.
func buildVenue(cfg config.DexConfig, router dex.Router) (dex.Venue, error) {
	switch cfg.Name {
	case config.DexHarbor:
		return harbor.NewAdapter(cfg.Connectors.Harbor, router, harbor.WithLogger(newComponentLogger("harbor "))), nil
	default:
		return nil, fmt.Errorf("dex %q not supported", cfg.Name)
	}
}

func buildAPIServer(cfg config.ServerConfig, router *httpserver.Server) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.Handler(),
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       0,
		MaxHeaderBytes:    0,
		ErrorLog:          nil,
		BaseContext:       nil,
		ConnContext:       nil,
		ReadHeaderTimeout: apiReadHeaderTimeout,
	}
}

func startAPIServer(lifecycle *conc.WaitGroup, logger *log.Logger, server *http.Server) {
	lifecycle.Go(func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("api server: %v", err)
		}
	})
}

type websocketCloser interface {
	Close()
}

type gracefulShutdownConfig struct {
	server     *http.Server
	websockets websocketCloser
	venue      dex.Lifecycle
	mainCancel context.CancelFunc
	lifecycle  *conc.WaitGroup
	telemetry  *telemetry.Provider
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}

	// Hijacked websocket connections are not tracked by http.Server.Shutdown.
	if cfg.websockets != nil {
		logger.Print("shutdown: closing websocket clients")
		cfg.websockets.Close()
	}

	if cfg.server != nil {
		shutdownStep("stopping api server", apiServerShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.server.Shutdown(stepCtx)
		})
	}

	if cfg.venue != nil {
		shutdownStep("stopping venue", adapterShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.venue.Stop(stepCtx)
		})
	}

	logger.Print("shutdown: cancelling main context")
	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}

	if cfg.lifecycle != nil {
		shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
			}
		})
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.telemetry.Shutdown(stepCtx)
		})
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	return filepath.Clean(defaultConfigPath)
}
