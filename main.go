// Package main is the entry point for the reqproxy type-ahead search.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/spf13/pflag"

	"github.com/billie-coop/reqproxy/internal/config"
	"github.com/billie-coop/reqproxy/internal/events"
	"github.com/billie-coop/reqproxy/internal/logging"
	"github.com/billie-coop/reqproxy/internal/metrics"
	"github.com/billie-coop/reqproxy/internal/proxy"
	"github.com/billie-coop/reqproxy/internal/transport"
	"github.com/billie-coop/reqproxy/internal/tui"
)

func main() {
	fs := pflag.NewFlagSet("reqproxy", pflag.ExitOnError)
	config.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: reqproxy [flags]\n\nType-ahead search against <base-url><search_path>?q=<text>.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The terminal belongs to bubbletea, so logs go to a file.
	logger, err := logging.NewFileLogger(cfg.LogFile, cfg.Verbosity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening log file: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsPort != 0 {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsPort, logger.WithName("metrics")); err != nil {
				logger.Error(err, "Metrics server stopped")
			}
		}()
	}

	opts := []transport.Option{
		transport.WithLogger(logger.WithName("transport")),
		transport.WithBaseURL(cfg.BaseURL),
		transport.WithTimeout(cfg.Timeout),
	}
	for k, v := range cfg.Headers {
		opts = append(opts, transport.WithDefaultHeader(k, v))
	}
	httpTransport := transport.NewHTTPTransport(opts...)
	defer httpTransport.Close()

	broker := events.NewBroker()
	p := proxy.New(httpTransport,
		proxy.WithLogger(logger),
		proxy.WithBroker(broker),
		proxy.WithContext(ctx),
	)

	m := tui.New(p, cfg, logger)
	defer m.Close()

	logger.Info("Starting", "baseURL", cfg.BaseURL, "searchPath", cfg.SearchPath)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logging.Fatal(logger, err, "Program exited with error")
	}
}
