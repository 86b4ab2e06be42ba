// Command claimsctl deploys the Claims contract.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/farhad-zada/holders-collaborators-claims/cmd/claimsctl/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("claimsctl failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}
