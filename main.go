package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"fluxrelay/addrpool"
	"fluxrelay/core"
	"fluxrelay/core/validation"
	"fluxrelay/gradio"
	"fluxrelay/logging"
	"fluxrelay/metrics"
	"fluxrelay/pipeline"
	"fluxrelay/shutdown"
	"fluxrelay/webui"
)

// probeTimeout bounds each startup reachability check.
const probeTimeout = 10 * time.Second

func main() {
	if handled, code := HandleServiceCommand(os.Args, os.Stdout); handled {
		os.Exit(code)
	}

	if runAsService, err := RunAsService(); runAsService {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(core.ExitCodeError)
		}
		return
	}

	os.Exit(runForeground())
}

// runForeground serves until SIGINT/SIGTERM and returns the exit code.
func runForeground() int {
	a, code := newApp()
	if a == nil {
		return code
	}
	a.manager.Start()

	if err := a.run(); err != nil {
		a.logger.Error("relay stopped with error", zap.Error(err))
		a.logger.Sync()
		return core.ExitCodeError
	}
	return core.ExitCodeSuccess
}

// app is one fully wired relay process.
type app struct {
	logger  *logging.Logger
	cfg     *core.Config
	server  *webui.Server
	manager *shutdown.Manager
}

// newApp loads .env and configuration, runs the startup checks and wires
// every component. On failure it returns nil and the exit code.
func newApp() (*app, int) {
	if err := godotenv.Load(); err != nil {
		// logger isn't up yet
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	isDevelopment := core.ParseBoolEnv("DEV_MODE", false)
	level := logging.LevelFromEnv("LOG_LEVEL", isDevelopment)
	logger, err := logging.NewLoggerWithLevel(isDevelopment, core.GetEnvOrDefault("LOG_FILE", "app.log"), level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, core.ExitCodeError
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration",
			zap.String("code", core.GetErrorCode(err)),
			zap.Error(err))
		var cfgErr *core.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Action != "" {
			fmt.Fprintf(os.Stderr, "%s\n  → %s\n", cfgErr.Message, cfgErr.Action)
		}
		logger.Sync()
		return nil, core.ExitCodeConfig
	}

	logger.Info("configuration loaded",
		zap.String("version", core.Version),
		zap.String("commit", core.GitCommit),
		zap.String("addr", cfg.Addr()),
		zap.String("address_list", cfg.AddressListFile),
		zap.String("translator", cfg.Translator.BaseURL),
		zap.String("image", cfg.Image.BaseURL),
		zap.Int("max_retries_per_address", cfg.MaxRetriesPerAddress),
		zap.Duration("retry_delay", cfg.RetryDelay),
		zap.Duration("run_timeout", cfg.RunTimeout),
		zap.Bool("rate_limit", cfg.RateLimitEnabled()),
		zap.Bool("dev_mode", cfg.IsDevelopment))

	result := startupChecks(cfg).Run(context.Background())
	if !result.Success {
		for _, err := range result.Errors() {
			logger.Error("startup check failed", zap.Error(err))
		}
		logger.Sync()
		return nil, core.ExitCodeError
	}

	return wire(cfg, logger), core.ExitCodeSuccess
}

// wire builds the component graph from a loaded configuration.
func wire(cfg *core.Config, logger *logging.Logger) *app {
	pool := addrpool.Load(cfg.AddressListFile, logger.Named("addrpool").Zap())
	client := gradio.NewClient(gradio.ConfigFrom(cfg), logger.Named("gradio"))
	orch := pipeline.New(client, pool, pipeline.ConfigFrom(cfg), logger.Named("pipeline"))

	manager := shutdown.NewManager(logger.Named("shutdown").Zap(),
		shutdown.WithTimeout(cfg.ShutdownTimeout))

	server := webui.NewServer(serverConfigFrom(cfg), orch, manager, pool, logger.Named("http").Zap())
	stats := metrics.NewStore(metrics.DefaultStoreConfig(), time.Now())
	server.SetStats(stats)
	orch.SetReporter(pipeline.Reporters(server.Broadcaster(), stats))

	manager.Register("http", 10, shutdown.StopServer(server))
	manager.Register("logger", 90, shutdown.SyncLogger(logger))

	return &app{logger: logger, cfg: cfg, server: server, manager: manager}
}

// run serves until the manager's context is cancelled or the listener
// fails, then performs the graceful shutdown.
func (a *app) run() error {
	serveCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start(serveCtx)
	}()

	var serveErr error
	select {
	case <-a.manager.Context().Done():
	case serveErr = <-errCh:
		if serveErr == nil {
			serveErr = errors.New("http server exited unexpectedly")
		}
	}

	if err := a.manager.Shutdown(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func serverConfigFrom(cfg *core.Config) webui.ServerConfig {
	sc := webui.DefaultServerConfig()
	sc.Addr = cfg.Addr()
	sc.RunTimeout = cfg.RunTimeout
	sc.RateLimitMax = cfg.RateLimitMax
	sc.RateLimitWindowMinutes = cfg.RateLimitWindowMinutes
	return sc
}

func startupChecks(cfg *core.Config) *validation.Suite {
	return validation.NewSuite("fluxrelay " + core.VersionInfo()).
		Add("address list", validation.AddressListCheck(cfg.AddressListFile)).
		Add(cfg.Translator.Name, validation.ServiceCheck(cfg.Translator, cfg.StartupProbe, probeTimeout)).
		Add(cfg.Image.Name, validation.ServiceCheck(cfg.Image, cfg.StartupProbe, probeTimeout))
}
