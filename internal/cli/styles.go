package cli

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ovoronkov/reelcut/internal/config"
	"github.com/ovoronkov/reelcut/internal/domain/captions"
)

func newStylesCommand(over *config.Overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List available caption styles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(*over)
			if err != nil {
				return err
			}

			catalog := captions.NewCatalog()
			if cfg.StylesFile != "" {
				if err := catalog.LoadStylesFile(cfg.StylesFile); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			tw := table.NewWriter()
			tw.SetOutputMirror(out)
			tw.SetStyle(tableStyle(out))
			tw.AppendHeader(table.Row{"ID", "FONT", "SIZE", "LOOK", "KARAOKE"})
			for _, id := range catalog.IDs() {
				st, ok := catalog.Get(id)
				if !ok {
					continue
				}
				name := id
				if id == captions.DefaultStyleID {
					name += " (default)"
				}
				tw.AppendRow(table.Row{name, st.FontName, st.FontSize, lookLabel(st), yesNo(st.Karaoke)})
			}
			tw.Render()
			return nil
		},
	}
}

func lookLabel(st captions.Style) string {
	if st.BorderStyle == 3 {
		return "boxed"
	}
	return "outline"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
