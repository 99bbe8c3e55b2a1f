package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile      string
	ConfigDir       string
	VarsFile        string
	NATSURL         string
	LogLevel        string
	LogFormat       string
	Verbose         bool
	Pulse           time.Duration
	MetricsPort     int
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigFile, "f",
		getEnv("VARMSG_CONFIG_FILE", ""),
		"Path to a single message definition file (env: VARMSG_CONFIG_FILE)")

	flag.StringVar(&cfg.ConfigDir, "d",
		getEnv("VARMSG_CONFIG_DIR", ""),
		"Directory of message definition files (env: VARMSG_CONFIG_DIR)")

	flag.StringVar(&cfg.VarsFile, "vars",
		getEnv("VARMSG_VARS_FILE", ""),
		"JSON file of variables to seed the store with (env: VARMSG_VARS_FILE)")

	flag.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("VARMSG_NATS_URL", ""),
		"NATS server URL for mqueue sinks, empty to disable (env: VARMSG_NATS_URL)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("VARMSG_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: VARMSG_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("VARMSG_LOG_FORMAT", "json"),
		"Log format: json, text (env: VARMSG_LOG_FORMAT)")

	flag.DurationVar(&cfg.Pulse, "pulse",
		getEnvDuration("VARMSG_PULSE", time.Second),
		"Tick period; one tick is one interval unit (env: VARMSG_PULSE)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("VARMSG_METRICS_PORT", 9090),
		"Prometheus metrics port, 0 to disable (env: VARMSG_METRICS_PORT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("VARMSG_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: VARMSG_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.Verbose, "v", false, "Enable verbose (debug) logging")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	// Custom usage
	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	// Verbose overrides the log level
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigFile == "" && cfg.ConfigDir == "" {
		return fmt.Errorf("no message definitions: provide -f or -d")
	}

	if cfg.ConfigFile != "" {
		if _, err := os.Stat(cfg.ConfigFile); err != nil {
			return fmt.Errorf("definition file not found: %s", cfg.ConfigFile)
		}
	}

	if cfg.ConfigDir != "" {
		if _, err := os.Stat(cfg.ConfigDir); err != nil {
			return fmt.Errorf("definition directory not found: %s", cfg.ConfigDir)
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	if cfg.Pulse <= 0 {
		return fmt.Errorf("invalid pulse period: %v", cfg.Pulse)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Variable Message Generator

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Generate messages from one definition
  %s -f /etc/varmsg/metrics.json

  # Load every definition in a directory, publish over NATS
  %s -d /etc/varmsg/conf.d -nats-url nats://localhost:4222

  # Run with environment variables
  export VARMSG_CONFIG_DIR=/etc/varmsg/conf.d
  export VARMSG_LOG_LEVEL=debug
  %s

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
