package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"docrag/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.Execute(ctx)
	if closeErr := cli.Close(); closeErr != nil {
		fmt.Fprintln(os.Stderr, "warning:", closeErr)
	}
	stop()

	if err != nil {
		os.Exit(1)
	}
}
