// Command videolib manages a user's exercise video library from the terminal.
// It drives the same sync engine as interactive clients: a local setup uses
// the embedded SQLite store and an in-process feed, a shared setup uses
// Postgres with the Redis change feed so other clients see every change.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
