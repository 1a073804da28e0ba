package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/config"
	"github.com/ovoronkov/reelcut/internal/domain/captions"
	"github.com/ovoronkov/reelcut/internal/domain/moments"
	"github.com/ovoronkov/reelcut/internal/ports"
	"github.com/ovoronkov/reelcut/internal/registry"
	"github.com/ovoronkov/reelcut/internal/storage"
	"github.com/ovoronkov/reelcut/internal/types"
)

func TestRun_ProducesOrderedKeyedClips(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(2 * time.Minute)
	// The first clip renders slowest; output order must still follow
	// selection order.
	video.delaySubstr = "-1_vertical"
	video.delay = 60 * time.Millisecond

	env := newTestEnv(t, video, nil)
	res, err := env.uc.Run(context.Background(), Input{
		Source: env.srcFile,
		Count:  2,
		Preset: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Clips) != 2 || len(res.Failures) != 0 {
		t.Fatalf("expected 2 clips and no failures, got %d/%d", len(res.Clips), len(res.Failures))
	}
	for i, c := range res.Clips {
		wantKey := fmt.Sprintf("%s-%d", res.SourceID, i+1)
		if c.Key != wantKey {
			t.Fatalf("clip %d key = %q, want %q", i, c.Key, wantKey)
		}
		if c.Range.Index != i+1 {
			t.Fatalf("clip %d range index = %d", i, c.Range.Index)
		}
		if _, err := os.Stat(c.OutputPath); err != nil {
			t.Fatalf("output missing for %s: %v", c.Key, err)
		}
		if c.ArchiveURL != "" {
			t.Fatalf("local store should not archive, got %q", c.ArchiveURL)
		}
	}

	stored, err := env.reg.List(context.Background(), res.SourceID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("registry holds %d clips, want 2", len(stored))
	}

	video.mu.Lock()
	defer video.mu.Unlock()
	if len(video.renderSpecs) != 2 {
		t.Fatalf("expected 2 renders, got %d", len(video.renderSpecs))
	}
	for _, spec := range video.renderSpecs {
		if spec.WatermarkText != "@reelcut" {
			t.Fatalf("watermark = %q", spec.WatermarkText)
		}
		if spec.SubtitlePath == "" {
			t.Fatalf("expected subtitles to be burned when a transcript exists")
		}
	}
}

func TestRun_PartialSuccessKeepsSiblings(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(2 * time.Minute)
	video.failSubstr = "-2_vertical"

	env := newTestEnv(t, video, nil)
	res, err := env.uc.Run(context.Background(), Input{
		Source: env.srcFile,
		Count:  2,
		Preset: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("run should not fail on a single bad render: %v", err)
	}
	if len(res.Clips) != 1 {
		t.Fatalf("expected 1 surviving clip, got %d", len(res.Clips))
	}
	if len(res.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(res.Failures))
	}
	f := res.Failures[0]
	if f.Index != 2 {
		t.Fatalf("failure index = %d, want 2", f.Index)
	}
	if !strings.Contains(f.Reason, "render failed") {
		t.Fatalf("failure reason %q should carry the render error", f.Reason)
	}

	stored, err := env.reg.List(context.Background(), res.SourceID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 || stored[0].Key != res.SourceID+"-1" {
		t.Fatalf("registry should hold only the surviving clip, got %+v", stored)
	}
}

func TestRun_InvalidStyleRejectedBeforeWork(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(2 * time.Minute)
	env := newTestEnv(t, video, nil)

	_, err := env.uc.Run(context.Background(), Input{
		Source: env.srcFile,
		Style:  types.CaptionStyleSpec{StyleID: "neon"},
	})
	if !errors.Is(err, types.ErrInvalidStyle) {
		t.Fatalf("expected ErrInvalidStyle, got %v", err)
	}

	video.mu.Lock()
	calls := video.probeCalls + len(video.cutOuts) + len(video.renderSpecs)
	video.mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected no toolkit calls for an invalid style, got %d", calls)
	}
	if _, err := os.Stat(env.cfg.WorkDir); !os.IsNotExist(err) {
		t.Fatalf("work dir should not exist, stat err=%v", err)
	}
}

func TestRun_TranscriberDownFallsBackToEnergy(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(2 * time.Minute)
	env := newTestEnv(t, video, func(d *Deps) {
		d.Transcriber = &fakeTranscriber{err: errors.New("whisper is down")}
	})

	res, err := env.uc.Run(context.Background(), Input{
		Source: env.srcFile,
		Count:  2,
		Preset: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Clips) != 2 {
		t.Fatalf("energy fallback should still fill the request, got %d clips", len(res.Clips))
	}

	video.mu.Lock()
	defer video.mu.Unlock()
	if video.pcmCalls != 1 {
		t.Fatalf("expected one PCM extraction for energy scoring, got %d", video.pcmCalls)
	}
	for _, spec := range video.renderSpecs {
		if spec.SubtitlePath != "" {
			t.Fatalf("no transcript means no subtitles, got %q", spec.SubtitlePath)
		}
	}
}

func TestRun_TextModeRequiresTranscript(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(2 * time.Minute)
	env := newTestEnv(t, video, func(d *Deps) {
		d.Transcriber = &fakeTranscriber{err: errors.New("whisper is down")}
	})

	_, err := env.uc.Run(context.Background(), Input{
		Source: env.srcFile,
		Mode:   moments.ModeText,
	})
	if !errors.Is(err, types.ErrTranscriptionUnavailable) {
		t.Fatalf("expected ErrTranscriptionUnavailable, got %v", err)
	}

	video.mu.Lock()
	defer video.mu.Unlock()
	if len(video.cutOuts) != 0 {
		t.Fatalf("no cuts expected when text mode cannot run, got %d", len(video.cutOuts))
	}
}

func TestRun_ShortSourceBecomesSingleClip(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(20 * time.Second)
	env := newTestEnv(t, video, nil)

	res, err := env.uc.Run(context.Background(), Input{
		Source: env.srcFile,
		Count:  3,
		Preset: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Clips) != 1 {
		t.Fatalf("short source should yield exactly one clip, got %d", len(res.Clips))
	}
	c := res.Clips[0]
	if c.Key != res.SourceID+"-1" {
		t.Fatalf("key = %q", c.Key)
	}
	if c.Range.Start != 0 || c.Range.End != 20*time.Second {
		t.Fatalf("range = [%s, %s], want the whole source", c.Range.Start, c.Range.End)
	}
}

func TestRegenerate_SwapsStyleKeepsMetadata(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(20 * time.Second)
	md := &fakeMetadata{md: types.ClipMetadata{
		Title:       "Great moment",
		Description: "You will not believe it",
		Hashtags:    []string{"#shorts", "#wow"},
	}}
	env := newTestEnv(t, video, func(d *Deps) { d.Metadata = md })

	res, err := env.uc.Run(context.Background(), Input{Source: env.srcFile, Count: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	orig := res.Clips[0]
	if orig.Metadata.Title != "Great moment" {
		t.Fatalf("metadata not applied on first render: %+v", orig.Metadata)
	}

	updated, err := env.uc.Regenerate(context.Background(), orig.Key, types.CaptionStyleSpec{StyleID: "mozi"})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if updated.Style.StyleID != "mozi" {
		t.Fatalf("style not updated: %+v", updated.Style)
	}
	if updated.Metadata.Title != "Great moment" {
		t.Fatalf("regeneration must preserve metadata, got %+v", updated.Metadata)
	}
	if md.calls() != 1 {
		t.Fatalf("metadata generator re-invoked on regeneration: %d calls", md.calls())
	}
	if !updated.RenderedAt.After(orig.RenderedAt) && !updated.RenderedAt.Equal(orig.RenderedAt) {
		t.Fatalf("rendered_at went backwards: %s then %s", orig.RenderedAt, updated.RenderedAt)
	}

	video.mu.Lock()
	cuts := len(video.cutOuts)
	video.mu.Unlock()
	if cuts != 1 {
		t.Fatalf("regeneration must reuse the cut intermediate, got %d cuts", cuts)
	}

	ass, err := os.ReadFile(filepath.Join(env.cfg.WorkDir, orig.SourceID, orig.Key+".ass"))
	if err != nil {
		t.Fatalf("read regenerated subtitles: %v", err)
	}
	if !strings.Contains(string(ass), "Mozi") {
		t.Fatalf("subtitles should use the new style, got:\n%s", ass)
	}

	stored, err := env.reg.Get(context.Background(), orig.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Style.StyleID != "mozi" || stored.Metadata.Title != "Great moment" {
		t.Fatalf("registry row not updated in place: %+v", stored)
	}
}

func TestRegenerate_RecutsWhenIntermediateGone(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(20 * time.Second)
	env := newTestEnv(t, video, nil)

	res, err := env.uc.Run(context.Background(), Input{Source: env.srcFile, Count: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	clip := res.Clips[0]
	if err := os.Remove(clip.CutPath); err != nil {
		t.Fatalf("remove cut: %v", err)
	}

	updated, err := env.uc.Regenerate(context.Background(), clip.Key, types.CaptionStyleSpec{StyleID: "classic"})
	if err != nil {
		t.Fatalf("regenerate after losing the cut: %v", err)
	}

	video.mu.Lock()
	cuts := len(video.cutOuts)
	video.mu.Unlock()
	if cuts != 2 {
		t.Fatalf("expected a re-cut from the source, got %d cuts", cuts)
	}
	if _, err := os.Stat(updated.CutPath); err != nil {
		t.Fatalf("re-made cut missing: %v", err)
	}
}

func TestRegenerate_UnknownKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, newFakeVideo(20*time.Second), nil)
	_, err := env.uc.Regenerate(context.Background(), "nope-1", types.CaptionStyleSpec{})
	if !errors.Is(err, types.ErrClipNotFound) {
		t.Fatalf("expected ErrClipNotFound, got %v", err)
	}
}

func TestRegenerate_SerializesPerKey(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(20 * time.Second)
	env := newTestEnv(t, video, nil)

	res, err := env.uc.Run(context.Background(), Input{Source: env.srcFile, Count: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	key := res.Clips[0].Key

	video.mu.Lock()
	video.delaySubstr = "_vertical"
	video.delay = 30 * time.Millisecond
	video.maxInFlight = 0
	video.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.uc.Regenerate(context.Background(), key, types.CaptionStyleSpec{StyleID: "glitch"}); err != nil {
				t.Errorf("regenerate: %v", err)
			}
		}()
	}
	wg.Wait()

	video.mu.Lock()
	defer video.mu.Unlock()
	if video.maxInFlight != 1 {
		t.Fatalf("renders of one key overlapped: max in flight %d", video.maxInFlight)
	}
}

func TestRegenerate_KeepReplacedRetiresOldOutput(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(20 * time.Second)
	env := newTestEnv(t, video, func(d *Deps) { d.Config.KeepReplaced = true })

	res, err := env.uc.Run(context.Background(), Input{Source: env.srcFile, Count: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	key := res.Clips[0].Key

	if _, err := env.uc.Regenerate(context.Background(), key, types.CaptionStyleSpec{StyleID: "deep_diver"}); err != nil {
		t.Fatalf("regenerate: %v", err)
	}

	entries, err := os.ReadDir(env.cfg.OutputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	var current, replaced bool
	for _, e := range entries {
		switch {
		case e.Name() == key+".mp4":
			current = true
		case strings.Contains(e.Name(), "_replaced_"):
			replaced = true
		}
	}
	if !current || !replaced {
		t.Fatalf("expected current and retired outputs, got %v", names(entries))
	}
}

func TestShare_PublishesWithAssembledCaption(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(20 * time.Second)
	pub := &fakePublisher{id: "media789"}
	md := &fakeMetadata{md: types.ClipMetadata{
		Title:       "Big reveal",
		Description: "The part everyone quotes.",
		Hashtags:    []string{"#shorts", "#reveal"},
	}}
	env := newTestEnv(t, video, func(d *Deps) {
		d.Publisher = pub
		d.Metadata = md
		d.Config.PublicBaseURL = "https://clips.example.com/"
	})

	res, err := env.uc.Run(context.Background(), Input{Source: env.srcFile, Count: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	key := res.Clips[0].Key

	id, err := env.uc.Share(context.Background(), key, "tok-1", "acct-9")
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if id != "media789" {
		t.Fatalf("media id = %q", id)
	}

	wantURL := "https://clips.example.com/static/clips/" + key + ".mp4"
	if pub.req.VideoURL != wantURL {
		t.Fatalf("video url = %q, want %q", pub.req.VideoURL, wantURL)
	}
	if pub.req.AccessToken != "tok-1" || pub.req.AccountID != "acct-9" {
		t.Fatalf("credentials not passed through: %+v", pub.req)
	}
	if !strings.Contains(pub.req.Caption, "Big reveal") || !strings.Contains(pub.req.Caption, "#reveal") {
		t.Fatalf("caption missing metadata parts: %q", pub.req.Caption)
	}
}

func TestShare_LocalOnlyWithoutBaseURL(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(20 * time.Second)
	env := newTestEnv(t, video, func(d *Deps) { d.Publisher = &fakePublisher{id: "x"} })

	res, err := env.uc.Run(context.Background(), Input{Source: env.srcFile, Count: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	_, err = env.uc.Share(context.Background(), res.Clips[0].Key, "tok", "acct")
	if err == nil || !strings.Contains(err.Error(), "PUBLIC_BASE_URL") {
		t.Fatalf("expected a public URL error, got %v", err)
	}
}

func TestRun_URLWithoutDownloader(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, newFakeVideo(20*time.Second), nil)
	_, err := env.uc.Run(context.Background(), Input{Source: "https://example.com/talk"})
	if !errors.Is(err, types.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestManifest_MapsClipsAndFailures(t *testing.T) {
	t.Parallel()

	res := types.JobResult{
		SourceID: "abc123",
		Clips: []types.Clip{{
			Key:        "abc123-1",
			SourceID:   "abc123",
			Range:      types.SelectedRange{Index: 1, Start: 10 * time.Second, End: 40 * time.Second, Score: 0.7, Reason: "hook"},
			OutputPath: "/data/processed/abc123-1.mp4",
			Metadata:   types.ClipMetadata{Title: "T", Description: "D", Hashtags: []string{"#a"}},
		}},
		Failures: []types.ClipFailure{{Index: 2, StartSec: 50, EndSec: 80, Reason: "boom"}},
	}

	m := Manifest("input.mp4", res)
	if m.SourceID != "abc123" || m.Input != "input.mp4" {
		t.Fatalf("header fields wrong: %+v", m)
	}
	if len(m.Clips) != 1 {
		t.Fatalf("expected 1 manifest clip, got %d", len(m.Clips))
	}
	c := m.Clips[0]
	if c.Key != "abc123-1" || c.File != "abc123-1.mp4" || c.StartSec != 10 || c.EndSec != 40 {
		t.Fatalf("clip mapping wrong: %+v", c)
	}
	if len(m.Failures) != 1 || m.Failures[0].Index != 2 {
		t.Fatalf("failure mapping wrong: %+v", m.Failures)
	}
}

// --- test scaffolding ---

type testEnv struct {
	uc      *Usecase
	reg     *registry.Registry
	cfg     *config.Config
	srcFile string
}

func newTestEnv(t *testing.T, video *fakeVideo, customize func(*Deps)) *testEnv {
	t.Helper()

	tmp := t.TempDir()
	cfg := &config.Config{
		WorkDir:             filepath.Join(tmp, "work"),
		OutputDir:           filepath.Join(tmp, "processed"),
		ClipPreset:          30 * time.Second,
		StrideFraction:      0.5,
		BackfillMinStartGap: 10 * time.Second,
		HeuristicWeight:     0.4,
		RelevanceWeight:     0.6,
		SampleInterval:      500 * time.Millisecond,
		SmoothingAlpha:      0.25,
		MotionWeight:        2.0,
		RenderConcurrency:   2,
		WatermarkText:       "@reelcut",
		WatermarkOpacity:    0.8,
		WatermarkFontSize:   24,
	}

	reg, err := registry.Open(filepath.Join(tmp, "registry.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	d := Deps{
		Video:       video,
		Transcriber: &fakeTranscriber{tr: testTranscript()},
		Registry:    reg,
		Store:       storage.NewLocalStore(cfg.OutputDir),
		Styles:      captions.NewCatalog(),
		Config:      cfg,
		Log:         zerolog.Nop(),
	}
	if customize != nil {
		customize(&d)
	}

	srcFile := filepath.Join(tmp, "input.mp4")
	if err := os.WriteFile(srcFile, []byte("not really an mp4"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	return &testEnv{uc: New(d), reg: reg, cfg: cfg, srcFile: srcFile}
}

// testTranscript spreads words over two minutes so window building always
// finds text.
func testTranscript() types.Transcript {
	words := []string{"welcome", "back", "here", "is", "the", "secret", "nobody", "shares", "and", "why", "it", "works"}
	var toks []types.Token
	for i := 0; i < 40; i++ {
		start := float64(i * 3)
		toks = append(toks, types.Token{
			Text:  words[i%len(words)],
			Start: start,
			End:   start + 1.5,
		})
	}
	return types.Transcript{Language: "en", Tokens: toks}
}

func names(entries []os.DirEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

type fakeVideo struct {
	mu sync.Mutex

	probe      ports.ProbeInfo
	probeCalls int

	cutOuts     []string
	renderOuts  []string
	renderSpecs []ports.RenderSpec
	pcmCalls    int

	audioErr   error
	sampleErr  error
	failSubstr string

	delaySubstr string
	delay       time.Duration

	inFlight    int
	maxInFlight int
}

func newFakeVideo(duration time.Duration) *fakeVideo {
	return &fakeVideo{probe: ports.ProbeInfo{Duration: duration, Width: 1920, Height: 1080, FPS: 30}}
}

func (f *fakeVideo) Probe(_ context.Context, _ string) (ports.ProbeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCalls++
	return f.probe, nil
}

func (f *fakeVideo) ExtractAudioMono16k(_ context.Context, _, outWav string) error {
	if f.audioErr != nil {
		return f.audioErr
	}
	return os.WriteFile(outWav, []byte("wav"), 0o644)
}

func (f *fakeVideo) ExtractPCM(_ context.Context, _ string, _, dur time.Duration) ([]byte, error) {
	f.mu.Lock()
	f.pcmCalls++
	f.mu.Unlock()

	// Alternate loud and quiet 100ms blocks so energy variance is nonzero.
	samples := int(dur.Seconds() * 16000)
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		if (i/1600)%2 == 0 {
			buf[2*i] = 0x00
			buf[2*i+1] = 0x40
		}
	}
	return buf, nil
}

func (f *fakeVideo) SampleFrames(_ context.Context, _ string, _ time.Duration, w, h int) ([][]byte, error) {
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	frames := make([][]byte, 3)
	for i := range frames {
		frames[i] = make([]byte, w*h)
	}
	return frames, nil
}

func (f *fakeVideo) CutClip(_ context.Context, inPath string, _, _ time.Duration, outPath string) error {
	f.mu.Lock()
	f.cutOuts = append(f.cutOuts, outPath)
	f.mu.Unlock()
	return os.WriteFile(outPath, []byte("cut of "+inPath), 0o644)
}

func (f *fakeVideo) RenderVertical(_ context.Context, inPath, outPath string, spec ports.RenderSpec) error {
	f.mu.Lock()
	f.renderOuts = append(f.renderOuts, outPath)
	f.renderSpecs = append(f.renderSpecs, spec)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := time.Duration(0)
	if f.delaySubstr != "" && strings.Contains(outPath, f.delaySubstr) {
		delay = f.delay
	}
	fail := f.failSubstr != "" && strings.Contains(outPath, f.failSubstr)
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if fail {
		return errors.New("encoder exploded")
	}
	return os.WriteFile(outPath, []byte("vertical of "+inPath), 0o644)
}

type fakeTranscriber struct {
	tr  types.Transcript
	err error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _, _ string) (types.Transcript, error) {
	if f.err != nil {
		return types.Transcript{}, f.err
	}
	return f.tr, nil
}

type fakeMetadata struct {
	mu sync.Mutex
	n  int
	md types.ClipMetadata
}

func (f *fakeMetadata) GenerateMetadata(_ context.Context, _, _ string) (types.ClipMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return f.md, nil
}

func (f *fakeMetadata) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

type fakePublisher struct {
	req ports.PublishRequest
	id  string
}

func (f *fakePublisher) Publish(_ context.Context, req ports.PublishRequest) (string, error) {
	f.req = req
	return f.id, nil
}
