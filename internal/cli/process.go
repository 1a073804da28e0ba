package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ovoronkov/reelcut/internal/config"
	"github.com/ovoronkov/reelcut/internal/pipeline"
	"github.com/ovoronkov/reelcut/internal/usecase"
)

func newProcessCommand(over *config.Overrides) *cobra.Command {
	var jf jobFlags

	cmd := &cobra.Command{
		Use:   "process <file-or-url>",
		Short: "Cut vertical clips from a local video file or a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*over)
			if err != nil {
				return err
			}

			source := args[0]
			if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
				if source, err = filepath.Abs(source); err != nil {
					return fmt.Errorf("resolve path: %w", err)
				}
			}

			in, err := jf.input(source)
			if err != nil {
				return err
			}

			app, err := pipeline.New(cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Usecase.Run(cmd.Context(), in)
			if err != nil {
				return err
			}

			if path, err := pipeline.WriteManifest(cfg.OutputDir, usecase.Manifest(args[0], res)); err != nil {
				log.Warn().Err(err).Msg("writing manifest failed")
			} else {
				log.Info().Str("path", path).Msg("manifest written")
			}

			out := cmd.OutOrStdout()
			if len(res.Clips) > 0 {
				writeClipTable(out, res.Clips)
			}
			writeFailureList(out, res.Failures)
			if len(res.Clips) == 0 {
				return errors.New("no clips were produced")
			}
			return nil
		},
	}

	jf.register(cmd)
	jf.registerRange(cmd)
	return cmd
}
