package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tsprobe/internal/cmd"
	"tsprobe/internal/logging"
)

func main() {
	logging.InitFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
