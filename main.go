// mailsort files messages in IMAP mailboxes according to declarative,
// ordered rules. One-shot by default; with a configured interval it keeps
// polling and optionally exposes Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailsort/mailsort/config"
	"github.com/mailsort/mailsort/logger"
	"github.com/mailsort/mailsort/pkg/metrics"
)

func main() {
	var (
		configPath    = flag.String("config", "mailsort.toml", "path to the configuration file")
		dryRun        = flag.Bool("dry-run", false, "log intended actions without mutating any mailbox")
		listMailboxes = flag.Bool("list-mailboxes", false, "connect to each account, print its mailboxes and exit")
		once          = flag.Bool("once", false, "run a single pass even when an interval is configured")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listMailboxes {
		if err := printMailboxes(ctx, cfg); err != nil {
			logger.Fatal("listing mailboxes failed", "error", err)
		}
		return
	}

	// All rules files are compiled before the first connection so that a
	// configuration error can never follow a mailbox mutation.
	ruleSets, err := loadRuleSets(cfg)
	if err != nil {
		logger.Fatal("invalid rules", "error", err)
	}

	interval, err := cfg.GetInterval()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	daemon := interval > 0 && !*once

	if cfg.Metrics.Enabled && daemon {
		go func() {
			logger.Info("metrics listener started", "addr", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, metrics.Handler()); err != nil {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	for {
		ok := runAll(ctx, cfg, ruleSets)
		if !daemon {
			if !ok {
				os.Exit(1)
			}
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-time.After(interval):
		}
	}
}
