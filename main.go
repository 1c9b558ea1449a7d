// VAT EU MCP Server - A Model Context Protocol server for EU VAT number validation.
// Checks numbers against per-country formats and confirms them with the EU VIES service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/olgasafonova/vat-eu-mcp-server/internal/config"
	"github.com/olgasafonova/vat-eu-mcp-server/internal/vat"
	"github.com/olgasafonova/vat-eu-mcp-server/internal/vies"
	"github.com/olgasafonova/vat-eu-mcp-server/tools"
	"github.com/olgasafonova/vat-eu-mcp-server/tracing"
)

const (
	ServerName    = "vat-eu-mcp-server"
	ServerVersion = "1.0.0"
)

const (
	mcpPath     = "/mcp"
	healthPath  = "/health"
	metricsPath = "/metrics"
)

const serverInstructions = `VAT EU MCP Server validates EU VAT identification numbers.

Available tools:
- vat_validate: Full check of one number (format, then the EU VIES service)
- vat_validate_batch: Full check of up to 20 numbers
- vat_check_format: Offline format check and normalization
- vat_list_countries: Member states and their number formats

Numbers may be entered with or without the country prefix and with spaces, dots or dashes.
Greece uses EL in VIES; GR is accepted and mapped. Countries outside the EU are accepted unchecked.
A retryable result means VIES could not answer right now, not that the number is invalid.`

// recoverPanic logs a panic instead of crashing the process.
func recoverPanic(logger *slog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error("Panic recovered",
			"operation", operation,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}

func main() {
	httpAddr := flag.String("http", "", "Serve MCP over streamable HTTP on this address instead of stdio (overrides HTTP_ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr; stdout carries the MCP protocol in stdio mode.
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSONLogs() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	traceCfg := tracing.DefaultConfig()
	traceCfg.ServiceVersion = ServerVersion
	shutdownTracing, err := tracing.Setup(ctx, traceCfg)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	client := vies.NewClient(cfg.VIESBaseURL,
		vies.WithLogger(logger),
		vies.WithTimeout(cfg.VIESTimeout),
		vies.WithMaxConcurrent(cfg.VIESMaxConcurrent),
		vies.WithUserAgent(cfg.VIESUserAgent),
	)

	cache, closeCache := newResultCache(ctx, cfg, logger)
	defer closeCache()

	validator := vat.New(client,
		vat.WithLogger(logger),
		vat.WithCache(cache, cfg.CacheTTL),
		vat.WithConcurrency(cfg.VIESMaxConcurrent),
	)

	server := newMCPServer(validator, logger)

	logger.Info("Starting VAT EU MCP Server",
		"name", ServerName,
		"version", ServerVersion,
		"vies_url", cfg.VIESBaseURL,
		"transport", transportName(cfg),
	)

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}

	if cfg.HTTPAddr == "" {
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
	return serveHTTP(ctx, cfg, server, validator, client, logger)
}

func transportName(cfg config.Config) string {
	if cfg.HTTPAddr != "" {
		return "http"
	}
	return "stdio"
}

func newMCPServer(validator *vat.Validator, logger *slog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, &mcp.ServerOptions{
		Logger:       logger,
		Instructions: serverInstructions,
	})
	tools.NewHandlerRegistry(validator, logger).RegisterAll(server)
	return server
}

// newResultCache prefers Redis when REDIS_URL is set and reachable, and falls
// back to the in-process cache otherwise.
func newResultCache(ctx context.Context, cfg config.Config, logger *slog.Logger) (vat.ResultCache, func()) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("Ignoring REDIS_URL", "error", err)
		} else {
			client := redis.NewClient(opts)
			rc := vat.NewRedisCache(client, logger)

			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := rc.Ping(pctx)
			cancel()
			if err == nil {
				logger.Info("Using Redis result cache", "addr", opts.Addr)
				return rc, func() { _ = client.Close() }
			}
			logger.Warn("Redis unreachable, using in-memory cache", "addr", opts.Addr, "error", err)
			_ = client.Close()
		}
	}

	mc := vat.NewMemoryCache(cfg.CacheSize)
	return mc, mc.Close
}

// newHTTPHandler builds the routes served in HTTP mode.
func newHTTPHandler(server *mcp.Server, validator *vat.Validator, client *vies.Client, logger *slog.Logger, sec SecurityConfig) *SecurityMiddleware {
	mux := http.NewServeMux()
	mux.Handle(mcpPath, mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil))
	mux.HandleFunc(healthPath, healthHandler(validator, client, logger))
	mux.Handle(metricsPath, promhttp.Handler())
	return NewSecurityMiddleware(mux, logger, sec)
}

func serveHTTP(ctx context.Context, cfg config.Config, server *mcp.Server, validator *vat.Validator, client *vies.Client, logger *slog.Logger) error {
	handler := newHTTPHandler(server, validator, client, logger, SecurityConfig{
		RateLimit:   cfg.HTTPRateLimit,
		MaxBodySize: cfg.HTTPMaxBodyBytes,
		AuthToken:   cfg.AuthToken,
	})
	defer handler.Close()

	if cfg.AuthToken == "" {
		logger.Warn("MCP_AUTH_TOKEN not set, HTTP transport is unauthenticated")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return listenUntilDone(ctx, srv, logger)
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	defer recoverPanic(logger, "metrics server")

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := listenUntilDone(ctx, srv, logger); err != nil {
		logger.Error("Metrics server stopped", "error", err)
	}
}

// listenUntilDone serves until ctx ends, then shuts down gracefully.
func listenUntilDone(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server", "addr", srv.Addr)
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	VIES     string `json:"vies_circuit"`
	InFlight int    `json:"vies_in_flight"`
}

func healthHandler(validator *vat.Validator, client *vies.Client, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats := client.CircuitBreakerStats()
		resp := healthResponse{
			Status:   "ok",
			Version:  ServerVersion,
			VIES:     stats.State,
			InFlight: validator.InFlight(),
		}
		if stats.State == "open" {
			resp.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("Health response write failed", "error", err)
		}
	}
}
