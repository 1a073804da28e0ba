package cli

import (
	"github.com/spf13/cobra"

	"github.com/ovoronkov/reelcut/internal/config"
	"github.com/ovoronkov/reelcut/internal/pipeline"
	"github.com/ovoronkov/reelcut/internal/types"
)

func newRegenerateCommand(over *config.Overrides) *cobra.Command {
	var (
		style     string
		textColor string
		bgColor   string
		fontSize  int
	)

	cmd := &cobra.Command{
		Use:   "regenerate <clip-key>",
		Short: "Re-render one clip with a different caption style",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*over)
			if err != nil {
				return err
			}

			app, err := pipeline.New(cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			clip, err := app.Usecase.Regenerate(cmd.Context(), args[0], types.CaptionStyleSpec{
				StyleID:         style,
				TextColor:       textColor,
				BackgroundColor: bgColor,
				FontSize:        fontSize,
			})
			if err != nil {
				return err
			}

			writeClipTable(cmd.OutOrStdout(), []types.Clip{clip})
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&style, "style", "", "Caption style id (see the styles command)")
	fl.StringVar(&textColor, "text-color", "", "Caption text color override, #RRGGBB")
	fl.StringVar(&bgColor, "bg-color", "", "Caption background color override, #RRGGBB")
	fl.IntVar(&fontSize, "font-size", 0, "Caption font size override")
	return cmd
}
