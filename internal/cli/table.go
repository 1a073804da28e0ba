package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/ovoronkov/reelcut/internal/domain/captions"
	"github.com/ovoronkov/reelcut/internal/types"
)

func writeClipTable(w io.Writer, clips []types.Clip) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(tableStyle(w))
	tw.AppendHeader(table.Row{"KEY", "RANGE", "SCORE", "STYLE", "TITLE", "FILE"})
	for _, c := range clips {
		tw.AppendRow(table.Row{
			c.Key,
			formatRange(c.Range),
			fmt.Sprintf("%.2f", c.Range.Score),
			styleID(c.Style),
			truncate(c.Metadata.Title, 40),
			filepath.Base(c.OutputPath),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
	})
	tw.Render()
}

func writeFailureList(w io.Writer, failures []types.ClipFailure) {
	for _, f := range failures {
		fmt.Fprintf(w, "clip %d failed: %s\n", f.Index, f.Reason)
	}
}

// tableStyle draws rounded boxes on a terminal and plain ASCII into pipes.
func tableStyle(w io.Writer) table.Style {
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return table.StyleRounded
	}
	return table.StyleDefault
}

func styleID(spec types.CaptionStyleSpec) string {
	if spec.StyleID == "" {
		return captions.DefaultStyleID
	}
	return spec.StyleID
}

func formatRange(r types.SelectedRange) string {
	return fmt.Sprintf("%s-%s (%ds)", clock(r.Start), clock(r.End), int((r.End - r.Start).Seconds()))
}

func clock(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
