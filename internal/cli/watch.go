package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ovoronkov/reelcut/internal/config"
	"github.com/ovoronkov/reelcut/internal/pipeline"
	"github.com/ovoronkov/reelcut/internal/watch"
)

func newWatchCommand(over *config.Overrides) *cobra.Command {
	var jf jobFlags

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Process every video dropped into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*over)
			if err != nil {
				return err
			}

			dir, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				return fmt.Errorf("%s is not a watchable directory", dir)
			}

			template, err := jf.input("")
			if err != nil {
				return err
			}

			app, err := pipeline.New(cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			w := watch.New(app.Usecase, dir, cfg.WatchSettle, template, log)
			return w.Run(cmd.Context())
		},
	}

	jf.register(cmd)
	return cmd
}
