// Command tally-rebuild verifies the history aggregates against the
// transactions they derive from and, unless -verify is given, rebuilds them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tally/internal/cli"
	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/services"
)

func main() {
	owner := flag.String("owner", "", "only process this owner (default: all owners)")
	verifyOnly := flag.Bool("verify", false, "report mismatches without rebuilding")
	flag.Parse()

	if err := cli.LoadEnvFile(); err != nil {
		log.New(log.DefaultConfig()).Warn("Failed to load .env file", log.FieldError, err)
	}
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentReconciler)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _, res := cli.OpenStore(ctx, logger, cfg)
	code := run(ctx, services.NewReconciler(res.Store, cfg.ReconcileConcurrency), *owner, *verifyOnly)
	if err := res.Cleanup(); err != nil {
		logger.Error("Failed to close store", log.FieldError, err)
	}
	os.Exit(code)
}

// run returns the process exit code: 0 when consistent or rebuilt, 2 when
// verification found mismatches, 1 on any other failure.
func run(ctx context.Context, r *services.Reconciler, owner string, verifyOnly bool) int {
	var (
		rep services.Report
		err error
	)
	if owner != "" {
		rep, err = r.VerifyOwner(ctx, owner)
	} else {
		rep, err = r.VerifyAll(ctx)
	}
	if err != nil && !errors.Is(err, core.ErrConsistency) {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		return 1
	}

	fmt.Printf("owners=%d buckets=%d mismatches=%d\n", rep.Owners, rep.Buckets, len(rep.Mismatches))
	for _, m := range rep.Mismatches {
		fmt.Println("  " + m.String())
	}

	if verifyOnly {
		if len(rep.Mismatches) > 0 {
			return 2
		}
		return 0
	}

	if owner != "" {
		if err := r.Rebuild(ctx, owner); err != nil {
			fmt.Fprintf(os.Stderr, "rebuild: %v\n", err)
			return 1
		}
		fmt.Printf("rebuilt owner %s\n", owner)
		return 0
	}
	n, err := r.RebuildAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild: %v\n", err)
		return 1
	}
	fmt.Printf("rebuilt %d owners\n", n)
	return 0
}
