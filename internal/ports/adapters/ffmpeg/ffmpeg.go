package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ovoronkov/reelcut/internal/ports"
)

// Adapter shells out to ffmpeg/ffprobe for every video operation the
// pipeline needs.
type Adapter struct {
	ffmpeg  string
	ffprobe string
}

var _ ports.VideoToolkit = (*Adapter)(nil)

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) Probe(ctx context.Context, path string) (ports.ProbeInfo, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return ports.ProbeInfo{}, fmt.Errorf("ffprobe %s: %w\n%s", path, err, string(b))
	}
	info, err := parseProbe(string(b))
	if err != nil {
		return ports.ProbeInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return info, nil
}

func parseProbe(out string) (ports.ProbeInfo, error) {
	var info ports.ProbeInfo
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch k {
		case "width":
			info.Width, _ = strconv.Atoi(v)
		case "height":
			info.Height, _ = strconv.Atoi(v)
		case "avg_frame_rate":
			info.FPS = parseRate(v)
		case "duration":
			sec, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return info, fmt.Errorf("parse duration %q: %w", v, err)
			}
			info.Duration = time.Duration(sec * float64(time.Second))
		}
	}
	if info.Duration <= 0 {
		return info, fmt.Errorf("no duration in probe output")
	}
	if info.Width <= 0 || info.Height <= 0 {
		return info, fmt.Errorf("no video stream dimensions in probe output")
	}
	return info, nil
}

func parseRate(v string) float64 {
	num, den, ok := strings.Cut(v, "/")
	if !ok {
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inPath, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

// ExtractPCM streams raw samples to stdout so energy scoring never touches
// the filesystem.
func (a *Adapter) ExtractPCM(ctx context.Context, inPath string, start, dur time.Duration) ([]byte, error) {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-ss", fmtSeconds(start),
		"-t", fmtSeconds(dur),
		"-i", inPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "s16le",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg extract pcm: %w\n%s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// SampleFrames pulls downscaled grayscale frames at a fixed rate for subject
// tracking. Frames come back as w*h raw bytes each.
func (a *Adapter) SampleFrames(ctx context.Context, inPath string, interval time.Duration, w, h int) ([][]byte, error) {
	if interval <= 0 || w <= 0 || h <= 0 {
		return nil, fmt.Errorf("bad frame sampling parameters")
	}
	fps := strconv.FormatFloat(1/interval.Seconds(), 'f', 4, 64)
	vf := fmt.Sprintf("fps=%s,scale=%d:%d,format=gray", fps, w, h)
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-i", inPath,
		"-vf", vf,
		"-f", "rawvideo",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg sample frames: %w\n%s", err, stderr.String())
	}
	raw := stdout.Bytes()
	size := w * h
	frames := make([][]byte, 0, len(raw)/size)
	for off := 0; off+size <= len(raw); off += size {
		frames = append(frames, raw[off:off+size])
	}
	return frames, nil
}

// CutClip re-encodes the range so the output starts exactly at the request
// and its timestamps reset to zero. -ss before -i keeps the seek fast; the
// re-encode keeps it frame-accurate.
func (a *Adapter) CutClip(ctx context.Context, inPath string, start, end time.Duration, outPath string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-ss", fmtSeconds(start),
		"-i", inPath,
		"-t", fmtSeconds(end-start),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "192k",
		outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg cut clip: %w\n%s", err, string(b))
	}
	return nil
}

// RenderVertical reframes the cut to 1080x1920 and burns subtitles plus the
// optional watermark in a single encode. Audio passes through untouched.
func (a *Adapter) RenderVertical(ctx context.Context, inPath, outPath string, spec ports.RenderSpec) error {
	var filters []string
	var cmdFile string
	if len(spec.CropXByTime) > 0 && spec.ScaledWidth > targetWidth {
		f, err := writeSendcmd(filepath.Dir(outPath), spec.CropXByTime)
		if err != nil {
			return err
		}
		cmdFile = f
		defer os.Remove(cmdFile)
		filters = append(filters,
			"sendcmd=f="+escapeFilterPath(cmdFile),
			fmt.Sprintf("scale=%d:%d", spec.ScaledWidth, targetHeight),
			fmt.Sprintf("crop=%d:%d:%d:0", targetWidth, targetHeight, spec.CropXByTime[0].X),
		)
	} else {
		// Cover-and-center keeps odd aspect sources renderable when no
		// horizontal plan exists.
		filters = append(filters,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", targetWidth, targetHeight),
			fmt.Sprintf("crop=%d:%d", targetWidth, targetHeight),
		)
	}
	if spec.SubtitlePath != "" {
		filters = append(filters, "subtitles="+escapeFilterPath(spec.SubtitlePath))
	}
	if spec.WatermarkText != "" {
		filters = append(filters, drawtextFilter(spec))
	}

	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inPath,
		"-vf", strings.Join(filters, ","),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "copy",
		outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg render vertical: %w\n%s", err, string(b))
	}
	return nil
}

const (
	targetWidth  = 1080
	targetHeight = 1920
)

// writeSendcmd materializes the crop plan as a sendcmd command file: one
// "<time> crop x <px>;" line per keyframe.
func writeSendcmd(dir string, keys []ports.CropKeyframe) (string, error) {
	f, err := os.CreateTemp(dir, "cropplan-*.cmd")
	if err != nil {
		return "", fmt.Errorf("write crop plan: %w", err)
	}
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(fmtSeconds(k.At))
		b.WriteString(" crop x ")
		b.WriteString(strconv.Itoa(k.X))
		b.WriteString(";\n")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write crop plan: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write crop plan: %w", err)
	}
	return f.Name(), nil
}

// drawtextFilter renders the watermark bottom-right with 20px padding, white
// at the configured opacity over a soft black border.
func drawtextFilter(spec ports.RenderSpec) string {
	size := spec.WatermarkFontSize
	if size <= 0 {
		size = 24
	}
	op := spec.WatermarkOpacity
	if op <= 0 || op > 1 {
		op = 0.8
	}
	return fmt.Sprintf(
		"drawtext=text='%s':fontsize=%d:fontcolor=white@%.2f:borderw=2:bordercolor=black@0.5:x=w-tw-20:y=h-th-20",
		escapeDrawtext(spec.WatermarkText), size, op,
	)
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}

// escapeDrawtext neutralizes characters that would terminate the quoted text
// argument or the filter expression.
func escapeDrawtext(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, ``)
	s = strings.ReplaceAll(s, `:`, `\:`)
	s = strings.ReplaceAll(s, `,`, `\,`)
	s = strings.ReplaceAll(s, `;`, `\;`)
	return s
}
