// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/keynav/cmd"
)

// main lets `go run .` behave like the keynav binary for non-interactive use.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.Execute(ctx); err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
