// ini2clash merges subscription-converter rule definitions into a Clash
// configuration template.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xxxbrian/ini2clash/internal/cli"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := cli.NewRootCmd(version)
	rootCmd.Version = version

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ini2clash: error: %v\n", err)
		os.Exit(1)
	}
}
