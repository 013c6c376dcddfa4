package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"attendclient/internal/app"
	"attendclient/internal/config"
	"attendclient/internal/logging"
)

func main() {
	cfg := config.Load()
	// login state must survive between invocations
	if cfg.StateBackend == "memory" {
		cfg.StateBackend = "sql"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, prometheus.NewRegistry(), logging.New(cfg.LogLevel, cfg.LogFormat))
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	cli := &commandLine{
		api:     a.API,
		auth:    a.Auth,
		ctrl:    a.Controller,
		locator: a.Locator,
		journal: a.Journal,
		loc:     cfg.Location(),
		out:     os.Stdout,
	}
	err = cli.run(ctx, os.Args)
	a.Close()
	if err != nil {
		if errors.Is(err, errHelp) {
			os.Exit(2)
		}
		log.Fatalf("error: %v", err)
	}
}
