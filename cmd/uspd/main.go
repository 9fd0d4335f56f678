package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// uspd is the composition root for the USP core: it wires every engine
// package (seal, encryption, kv, transit, audit, authn, pam/*, policy)
// into one process and runs the background maintenance every deployment
// needs regardless of caller (checkout/JIT expiry sweeps). Request
// routing is deliberately not this binary's job - spec §1 lists the
// HTTP/REST surface as an external collaborator the core integrates
// with, not something reimplemented here, so the packages this process
// wires together are consumed as a Go library by whatever service
// terminates that surface; that service links this module directly
// rather than calling through a network API owned by this repo.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "uspd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building app: %w", err)
	}

	slog.Info("uspd started", "tablePrefix", a.cfg.tablePrefix)
	a.runBackgroundSweeps(ctx)
	slog.Info("uspd shutting down")
	return nil
}
