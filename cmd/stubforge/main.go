// Package main provides the entry point for the stubforge CLI tool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sumatoshi-tech/stubforge/cmd/stubforge/commands"
	"github.com/Sumatoshi-tech/stubforge/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := commands.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}
