// Package ytdlp fetches remote videos by shelling out to a yt-dlp style
// downloader binary.
package ytdlp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ovoronkov/reelcut/internal/ports"
)

type Adapter struct {
	bin string
}

var _ ports.Downloader = (*Adapter)(nil)

func New(bin string) *Adapter {
	if bin == "" {
		bin = "yt-dlp"
	}
	return &Adapter{bin: bin}
}

// Fetch downloads url into destDir under the given id. The extension is
// whatever the downloader produces, so the actual file is located by glob
// afterwards.
func (a *Adapter) Fetch(ctx context.Context, url, destDir, id string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	outTmpl := filepath.Join(destDir, id+".%(ext)s")
	cmd := exec.CommandContext(ctx, a.bin,
		"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		"-o", outTmpl,
		"--no-playlist",
		"--force-ipv4",
		"--no-check-certificates",
		"--quiet",
		"--no-warnings",
		url,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp %s: %w\n%s", url, err, string(b))
	}

	matches, err := filepath.Glob(filepath.Join(destDir, id+".*"))
	if err != nil {
		return "", fmt.Errorf("locate download: %w", err)
	}
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("yt-dlp %s: no output file produced", url)
}
