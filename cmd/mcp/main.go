package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/richard-senior/forecast/internal/app"
	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/internal/processor"
	"github.com/richard-senior/forecast/pkg/util/forecast"
)

// A one-shot client. With arguments it calls a tool:
//
//	mcp predict_match home_team=Arsenal away_team=Chelsea
//
// Without arguments it reads a single JSON-RPC request from -input or stdin.
func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	configPath := flag.String("config", "", "YAML configuration file (defaults are used when empty)")
	inputFile := flag.String("input", "", "Input file path (if not provided, stdin will be used)")
	outputFile := flag.String("output", "", "Output file path (if not provided, stdout will be used)")
	flag.Parse()

	logger.SetShowDateTime(true)
	_ = logger.SetLogOutput('f')
	if *debug {
		_ = logger.SetLevel("debug")
	}
	defer logger.Sync()

	cfg := forecast.DefaultForecastConfig()
	if *configPath != "" {
		loaded, err := forecast.LoadConfig(*configPath)
		if err != nil {
			fail("failed to load configuration", err)
		}
		cfg = loaded
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		fail("failed to build server", err)
	}
	defer a.Close()
	p := processor.New(a.Server.HandleRequest)

	var result []byte
	if args := flag.Args(); len(args) > 0 {
		result, err = p.CallTool(ctx, args)
	} else {
		var input []byte
		if *inputFile != "" {
			input, err = os.ReadFile(*inputFile)
		} else {
			input, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			fail("failed to read input", err)
		}
		result, err = p.ProcessRequest(ctx, input)
	}
	if err != nil {
		fail("request failed", err)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, append(result, '\n'), 0644); err != nil {
			fail("failed to write output file", err)
		}
		return
	}
	if len(result) > 0 {
		fmt.Println(string(result))
	}
}

func fail(msg string, err error) {
	logger.Error(msg, err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	logger.Sync()
	os.Exit(1)
}
