package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/rpclink/internal/config"
	"github.com/danmuck/rpclink/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to link TOML config")
	flag.Parse()

	cfg := config.DefaultLinkConfig()
	if *configPath != "" {
		loaded, err := config.LoadLinkConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rpclinkctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	logging.ConfigureRuntimeLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "rpclinkctl: %v\n", err)
		os.Exit(1)
	}
}
