// Package main implements the varmsg entry point. varmsg periodically
// collects sets of variables from a variable store, renders them as
// JSON objects, and pushes the messages to configurable sinks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tjmonk/varmsg/definition"
	"github.com/tjmonk/varmsg/engine"
	"github.com/tjmonk/varmsg/metric"
	"github.com/tjmonk/varmsg/natsclient"
	"github.com/tjmonk/varmsg/pkg/retry"
	"github.com/tjmonk/varmsg/render"
	"github.com/tjmonk/varmsg/sink"
	"github.com/tjmonk/varmsg/varstore"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "varmsg"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	// Variable store
	store := varstore.NewMemStore()
	defer closeStore(store)
	if cliCfg.VarsFile != "" {
		defined, err := seedStore(store, cliCfg.VarsFile)
		if err != nil {
			return fmt.Errorf("seed variable store: %w", err)
		}
		slog.Info("Seeded variable store", "path", cliCfg.VarsFile, "variables", defined)
	}

	// Metrics
	metricsRegistry := metric.NewMetricsRegistry()
	metricsRegistry.CoreMetrics().RecordStoreStatus(true)

	// NATS is only attached when mqueue sinks are in play
	var natsClient *natsclient.Client
	sinkOpts := sink.Options{Stdout: os.Stdout, Logger: logger}
	if cliCfg.NATSURL != "" {
		natsClient, err = connectToNATS(signalCtx, cliCfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
			defer closeCancel()
			_ = natsClient.Close(closeCtx)
		}()
		sinkOpts.Publisher = natsClient
	}

	// Load message definitions
	registry, err := loadDefinitions(signalCtx, cliCfg, store, sinkOpts, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.Close(); err != nil {
			slog.Warn("Error closing definitions", "error", err)
		}
	}()

	eng := engine.New(registry, store, render.New(store, logger), logger,
		engine.WithPulse(cliCfg.Pulse),
		engine.WithMetrics(metricsRegistry.CoreMetrics()))

	return runServers(signalCtx, cliCfg, eng, metricsRegistry)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting varmsg (variable message generator)",
		"version", Version,
		"build_time", BuildTime,
		"config_file", cliCfg.ConfigFile,
		"config_dir", cliCfg.ConfigDir)

	return cliCfg, logger, false, nil
}

// connectToNATS establishes the NATS connection and waits for it to be ready
func connectToNATS(ctx context.Context, url string, logger *slog.Logger) (*natsclient.Client, error) {
	client, err := natsclient.NewClient(url,
		natsclient.WithLogger(&natsLogger{logger: logger}))
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", url)
	err = retry.Do(ctx, retry.Quick(), func() error {
		return client.Connect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return client, nil
}

// loadDefinitions builds the definition registry from -f and -d. Starting
// with zero definitions is an error: the generator would have nothing to do.
func loadDefinitions(
	ctx context.Context,
	cliCfg *CLIConfig,
	store varstore.Store,
	sinkOpts sink.Options,
	logger *slog.Logger,
) (*definition.Registry, error) {
	loader := definition.NewLoader(store, sinkOpts, logger)
	registry := definition.NewRegistry()

	if cliCfg.ConfigFile != "" {
		def, err := loader.LoadFile(ctx, cliCfg.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("load definition %s: %w", cliCfg.ConfigFile, err)
		}
		registry.Add(def)
	}

	if cliCfg.ConfigDir != "" {
		loaded, err := loader.LoadDirectory(ctx, cliCfg.ConfigDir, registry)
		if err != nil {
			return nil, fmt.Errorf("load definitions from %s: %w", cliCfg.ConfigDir, err)
		}
		slog.Info("Loaded definition directory", "dir", cliCfg.ConfigDir, "loaded", loaded)
	}

	if registry.Len() == 0 {
		return nil, fmt.Errorf("no message definitions loaded")
	}

	slog.Info("Message definitions ready", "count", registry.Len())
	return registry, nil
}

// runServers runs the engine and the metrics server until shutdown
func runServers(ctx context.Context, cliCfg *CLIConfig, eng *engine.Engine,
	metricsRegistry *metric.MetricsRegistry) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(gctx)
	})

	if cliCfg.MetricsPort > 0 {
		metricsServer := metric.NewServer(cliCfg.MetricsPort, "/metrics", metricsRegistry)
		slog.Info("Metrics server starting", "address", metricsServer.Address())

		g.Go(func() error {
			return metricsServer.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			return metricsServer.Stop()
		})
	}

	err := g.Wait()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	slog.Info("varmsg shutdown complete")
	return nil
}

// closeStore releases the store connection on shutdown, after the
// definitions have published their final counters.
func closeStore(store varstore.Store) {
	if err := store.Close(); err != nil {
		slog.Warn("Error closing variable store", "error", err)
	}
}

// seedVar is one entry in the -vars seed file.
type seedVar struct {
	Name       string   `json:"name"`
	Value      string   `json:"value"`
	InstanceID int      `json:"instance_id,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Flags      string   `json:"flags,omitempty"`
}

// seedStore defines the variables listed in the seed file into the store.
func seedStore(store *varstore.MemStore, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var seeds []seedVar
	if err := json.Unmarshal(data, &seeds); err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}

	for _, s := range seeds {
		flags, err := store.ParseFlags(s.Flags)
		if err != nil {
			return 0, fmt.Errorf("variable %s: %w", s.Name, err)
		}
		store.Define(varstore.VarDef{
			Name:       s.Name,
			Value:      s.Value,
			InstanceID: s.InstanceID,
			Tags:       s.Tags,
			Flags:      flags,
		})
	}

	return len(seeds), nil
}
