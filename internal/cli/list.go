package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ovoronkov/reelcut/internal/config"
	"github.com/ovoronkov/reelcut/internal/registry"
)

func newListCommand(over *config.Overrides) *cobra.Command {
	var sourceID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered clips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*over)
			if err != nil {
				return err
			}

			reg, err := registry.Open(cfg.RegistryPath, log)
			if err != nil {
				return err
			}
			defer reg.Close()

			clips, err := reg.List(cmd.Context(), sourceID)
			if err != nil {
				return err
			}
			if len(clips) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no clips registered")
				return nil
			}
			writeClipTable(cmd.OutOrStdout(), clips)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "Only clips cut from this source id")
	return cmd
}
