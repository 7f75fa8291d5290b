// Command cartctl drives a store's cart and newsletter endpoints from the
// command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/cartsync/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
