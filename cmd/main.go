package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/richard-senior/forecast/internal/app"
	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/util/forecast"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults are used when empty)")
	httpAddr := flag.String("http", "", "Serve JSON-RPC over HTTP on this address, e.g. :8080 (overrides http_address)")
	stdio := flag.Bool("stdio", true, "Serve JSON-RPC over stdin/stdout")
	logOutput := flag.String("log", "f", "Log output: c (stderr), f (file) or b (both)")
	logFile := flag.String("log-file", "", "Log file path (overrides log_file)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Configure logging before anything else writes
	logger.SetShowDateTime(true)
	if len(*logOutput) != 1 {
		fmt.Fprintln(os.Stderr, "invalid -log value:", *logOutput)
		os.Exit(2)
	}
	if err := logger.SetLogOutput(rune((*logOutput)[0])); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	cfg := forecast.DefaultForecastConfig()
	if *configPath != "" {
		loaded, err := forecast.LoadConfig(*configPath)
		if err != nil {
			logger.Fatal("Failed to load configuration", err)
		}
		cfg = loaded
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if *httpAddr != "" {
		cfg.HTTPAddress = *httpAddr
	}
	logger.SetLogFile(cfg.LogFile)
	level := cfg.LogLevel
	if *debug {
		level = "debug"
	}
	if err := logger.SetLevel(level); err != nil {
		logger.Warn("Ignoring log level", err)
	}

	logger.Highlight("Starting", app.Name, app.Version)

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to build server", err)
	}
	defer a.Close()

	transports := a.Transports(*stdio, cfg.HTTPAddress)
	if len(transports) == 0 {
		logger.Error("Nothing to serve: enable -stdio or set -http")
		os.Exit(2)
	}
	if err := a.Server.Start(ctx, transports...); err != nil {
		logger.Error("Server error:", err)
		a.Close()
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("Forecast server shutting down")
}
