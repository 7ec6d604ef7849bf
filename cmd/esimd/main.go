package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"esimchain/cmd/internal/passphrase"
	"esimchain/config"
	"esimchain/core"
	"esimchain/core/events"
	"esimchain/integrations/journal"
	"esimchain/integrations/natsbus"
	"esimchain/integrations/oracle"
	"esimchain/integrations/webhooks"
	"esimchain/native/proof"
	"esimchain/observability"
	"esimchain/observability/logging"
	telemetry "esimchain/observability/otel"
	"esimchain/rpc"
	"esimchain/storage"
)

const (
	operatorPassEnv = "ESIM_OPERATOR_PASS"
	environmentEnv  = "ESIM_ENV"
	shutdownTimeout = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	bootLogger := logging.Setup("esimd", strings.TrimSpace(os.Getenv(environmentEnv)))

	passSource := passphrase.NewSource(operatorPassEnv)
	cfg, err := config.Load(*configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		bootLogger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	env := cfg.Environment
	if override := strings.TrimSpace(os.Getenv(environmentEnv)); override != "" {
		env = override
	}
	logger, logCloser := logging.SetupWithOptions("esimd", env, logging.Options{
		Level:      logging.ParseLevel(cfg.Logging.Level),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	if err := run(cfg, env, logger); err != nil {
		logger.Error("esimd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, env string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "esimd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	nodeCfg, err := cfg.NodeConfig()
	if err != nil {
		return fmt.Errorf("node config: %w", err)
	}

	db, err := storage.Open(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	broadcaster := rpc.NewBroadcaster(logger)
	sinks, closeSinks, err := buildSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()
	emitter := events.NewFanout(append([]events.Emitter{observability.Events(), broadcaster}, sinks...)...)

	scorer, err := buildOracle(cfg)
	if err != nil {
		return err
	}

	node, err := core.NewNode(db, nodeCfg,
		core.WithOracle(scorer),
		core.WithEmitter(emitter),
		core.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	readTimeout, writeTimeout, err := cfg.RPCTimeouts()
	if err != nil {
		return err
	}
	server := rpc.NewServer(node, broadcaster, rpc.ServerConfig{
		Auth:         rpc.AuthConfig{HMACSecret: cfg.JWTSecret()},
		Insecure:     cfg.RPC.Insecure,
		RateLimit:    rpc.RateLimit{RequestsPerMinute: cfg.RPC.RequestsPerMinute, Burst: cfg.RPC.Burst},
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		Logger:       logger,
	})
	if cfg.JWTSecret() == "" && cfg.RPC.Insecure {
		logger.Warn("RPC.Insecure set; mutating methods trust the caller parameter")
	}

	rpcErrCh := make(chan error, 1)
	go func() {
		rpcErrCh <- server.Start(cfg.RPCAddress)
		close(rpcErrCh)
	}()
	if err := waitForRPCStartup(cfg.RPCAddress, rpcErrCh, 5*time.Second); err != nil {
		return fmt.Errorf("RPC server failed to start: %w", err)
	}

	status, err := node.Status()
	if err != nil {
		return err
	}
	logger.Info("esim node running",
		slog.String("rpc", cfg.RPCAddress),
		slog.String("storage", cfg.StorageBackend),
		slog.Uint64("height", status.Height),
		slog.String("root", status.Root.Hex()))

	select {
	case <-ctx.Done():
	case err, ok := <-rpcErrCh:
		if ok && err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("RPC server terminated: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildSinks wires the optional committed-event sinks. The returned closer
// releases every sink that was opened.
func buildSinks(cfg *config.Config, logger *slog.Logger) ([]events.Emitter, func(), error) {
	var (
		sinks   []events.Emitter
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if url := strings.TrimSpace(cfg.NATS.URL); url != "" {
		sink, conn, err := natsbus.Connect(url, cfg.NATS.Subject, logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		sinks = append(sinks, sink)
		closers = append(closers, func() { _ = conn.Drain() })
	}

	if dsn := strings.TrimSpace(cfg.Journal.DSN); dsn != "" {
		db, err := journal.Open(cfg.Journal.Driver, dsn)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		if err := journal.AutoMigrate(db); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("migrate journal: %w", err)
		}
		sinks = append(sinks, journal.New(db, logger))
		logger.Info("audit journal enabled",
			slog.String("driver", cfg.Journal.Driver),
			slog.String("dsn", logging.MaskDSN(dsn)))
		closers = append(closers, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
	}

	if url := strings.TrimSpace(cfg.Webhook.URL); url != "" {
		dispatcher, err := webhooks.NewDispatcher(url, []byte(cfg.Webhook.Secret),
			webhooks.WithEventTypes(cfg.Webhook.EventTypes...),
			webhooks.WithLogger(logger),
		)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("webhook dispatcher: %w", err)
		}
		sinks = append(sinks, dispatcher)
		closers = append(closers, dispatcher.Close)
	}

	return sinks, closeAll, nil
}

// buildOracle selects the HTTP attester when an endpoint is configured and the
// in-process scorer otherwise.
func buildOracle(cfg *config.Config) (proof.Oracle, error) {
	if strings.TrimSpace(cfg.Oracle.Endpoint) == "" {
		return oracle.Static{}, nil
	}
	timeout, err := cfg.OracleTimeout()
	if err != nil {
		return nil, err
	}
	client, err := oracle.NewHTTPClient(oracle.HTTPConfig{
		Endpoint:      cfg.Oracle.Endpoint,
		Timeout:       timeout,
		MaxRetries:    cfg.Oracle.MaxRetries,
		TripThreshold: cfg.Oracle.TripThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle client: %w", err)
	}
	return client, nil
}

func waitForRPCStartup(addr string, errCh <-chan error, timeout time.Duration) error {
	dialAddr := dialAddressFor(addr)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", dialAddr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case err, ok := <-errCh:
			if !ok || err == nil {
				return fmt.Errorf("RPC server exited before startup confirmation")
			}
			return err
		case <-ticker.C:
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for RPC server to start on %s", addr)
		}
	}
}

func dialAddressFor(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
