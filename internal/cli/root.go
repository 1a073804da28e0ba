// Package cli wires the cobra command tree. Every command loads config the
// same way (.env, environment, then flags) and builds its own logger, so
// subcommands stay independently runnable.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ovoronkov/reelcut/internal/config"
)

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var over config.Overrides

	root := &cobra.Command{
		Use:           "reelcut",
		Short:         "Cut short vertical clips out of long-form video",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&over.EnvFile, "env-file", "", "Path to a .env file (default ./.env)")
	pf.StringVar(&over.DataDir, "data-dir", "", "Base data directory (registry, work, output)")
	pf.StringVar(&over.OutputDir, "output-dir", "", "Directory for finished clips")
	pf.StringVar(&over.LogLevel, "log-level", "", "trace, debug, info, warn or error")

	root.AddCommand(
		newProcessCommand(&over),
		newRegenerateCommand(&over),
		newListCommand(&over),
		newStylesCommand(&over),
		newServeCommand(&over),
		newWatchCommand(&over),
	)
	return root
}
