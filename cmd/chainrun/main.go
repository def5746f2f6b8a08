// Command chainrun sends chains of HTTP requests from the command line.
//
//	chainrun [flags] CHAIN...
//
// Each CHAIN is a comma-separated list of URLs sent strictly one after
// another. Separate chains run concurrently:
//
//	chainrun --base-url http://localhost:8080 /login,/profile,/inbox /health
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/billie-coop/reqproxy/internal/config"
	"github.com/billie-coop/reqproxy/internal/logging"
	"github.com/billie-coop/reqproxy/internal/proxy"
	"github.com/billie-coop/reqproxy/internal/transport"
)

func main() {
	fs := pflag.NewFlagSet("chainrun", pflag.ExitOnError)
	config.RegisterFlags(fs)
	fs.StringP("method", "X", "GET", "HTTP method for every request")
	fs.Bool("no-progress", false, "do not draw a progress bar")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chainrun [flags] CHAIN...\n\nEach CHAIN is a comma-separated list of URLs run in order.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	// chainrun-only settings go through viper too, so REQPROXY_METHOD works.
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	_ = v.BindPFlag("method", fs.Lookup("method"))
	_ = v.BindPFlag("no_progress", fs.Lookup("no-progress"))

	logger := logging.NewLogger(cfg.Verbosity)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chains := ParseChains(fs.Args())

	// Every chain keeps one connection busy, so allow that many idle ones
	// per host instead of the default two.
	client := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: max(len(chains), 2),
			IdleConnTimeout:     90 * time.Second,
		},
	}

	opts := []transport.Option{
		transport.WithLogger(logger.WithName("transport")),
		transport.WithClient(client),
		transport.WithBaseURL(cfg.BaseURL),
		transport.WithTimeout(cfg.Timeout),
	}
	for k, val := range cfg.Headers {
		opts = append(opts, transport.WithDefaultHeader(k, val))
	}
	httpTransport := transport.NewHTTPTransport(opts...)
	defer httpTransport.Close()

	p := proxy.New(httpTransport,
		proxy.WithLogger(logger),
		proxy.WithContext(ctx),
	)

	color.Green("Base URL: %s\nChains: %d", cfg.BaseURL, len(chains))

	runner := NewRunner(p, v.GetString("method"), color.Output, !v.GetBool("no_progress"))
	summary, err := runner.Run(ctx, chains)
	if err != nil {
		color.Red("Interrupted: %v", err)
		os.Exit(1)
	}

	color.Yellow("Succeeded: %d  Failed: %d  Dropped: %d", summary.Succeeded, summary.Failed, summary.Dropped)
	if summary.Failed > 0 {
		os.Exit(1)
	}
}
