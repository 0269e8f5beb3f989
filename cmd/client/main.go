package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/salesnav/internal/client/cli"
	"github.com/iudanet/salesnav/internal/client/iocli"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Ctrl+C отменяет запрос, блокировка страницы все равно освобождается
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := cli.Execute(ctx, iocli.NewStdio(), os.Stderr, cli.BuildInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
	}, os.Args[1:])

	stop()
	os.Exit(code)
}
