package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/config"
	"github.com/ovoronkov/reelcut/internal/domain/captions"
	"github.com/ovoronkov/reelcut/internal/registry"
	"github.com/ovoronkov/reelcut/internal/storage"
	"github.com/ovoronkov/reelcut/internal/types"
	"github.com/ovoronkov/reelcut/internal/usecase"
)

// mockJobs implements JobService, recording the last call of each kind.
type mockJobs struct {
	lastRun     usecase.Input
	lastRegen   types.CaptionStyleSpec
	lastShare   [3]string
	runResult   types.JobResult
	regenResult types.Clip
	shareID     string
	err         error
}

func (m *mockJobs) Run(_ context.Context, in usecase.Input) (types.JobResult, error) {
	m.lastRun = in
	return m.runResult, m.err
}

func (m *mockJobs) Regenerate(_ context.Context, key string, spec types.CaptionStyleSpec) (types.Clip, error) {
	m.lastRegen = spec
	if m.err != nil {
		return types.Clip{}, m.err
	}
	c := m.regenResult
	c.Key = key
	return c, nil
}

func (m *mockJobs) Share(_ context.Context, key, token, account string) (string, error) {
	m.lastShare = [3]string{key, token, account}
	return m.shareID, m.err
}

func (m *mockJobs) ActiveJobs() int { return 0 }

func newTestServer(t *testing.T, jobs *mockJobs) (*Server, *registry.Registry, *config.Config) {
	t.Helper()

	tmp := t.TempDir()
	cfg := &config.Config{
		OutputDir: filepath.Join(tmp, "processed"),
		UploadDir: filepath.Join(tmp, "uploads"),
		HTTPAddr:  ":0",
	}
	for _, dir := range []string{cfg.OutputDir, cfg.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	reg, err := registry.Open(filepath.Join(tmp, "registry.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	srv := NewServer(Deps{
		Jobs:     jobs,
		Registry: reg,
		Store:    storage.NewLocalStore(cfg.OutputDir),
		Styles:   captions.NewCatalog(),
		Cfg:      cfg,
		Version:  "test",
		Log:      zerolog.Nop(),
	})
	return srv, reg, cfg
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func sampleClip(key string) types.Clip {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	idx := 1
	if i := strings.LastIndex(key, "-"); i >= 0 {
		if n, err := strconv.Atoi(key[i+1:]); err == nil {
			idx = n
		}
	}
	return types.Clip{
		Key:      key,
		SourceID: key[:strings.LastIndex(key, "-")],
		Range: types.SelectedRange{
			Index: idx, Start: 10 * time.Second, End: 40 * time.Second, Score: 0.8, Reason: "hook",
		},
		Style:      types.CaptionStyleSpec{StyleID: "karaoke"},
		OutputPath: "/data/processed/" + key + ".mp4",
		Metadata:   types.ClipMetadata{Title: "T", Hashtags: []string{"#a"}},
		CreatedAt:  now,
		RenderedAt: now,
	}
}

func TestProcess_RunsJob(t *testing.T) {
	t.Parallel()

	jobs := &mockJobs{runResult: types.JobResult{
		SourceID: "abc123",
		Clips:    []types.Clip{sampleClip("abc123-1")},
	}}
	srv, _, _ := newTestServer(t, jobs)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/process", map[string]any{
		"input":      "/videos/talk.mp4",
		"count":      2,
		"preset_sec": 45,
		"style":      map[string]any{"style_id": "mozi"},
		"mode":       "text",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	if jobs.lastRun.Source != "/videos/talk.mp4" || jobs.lastRun.Count != 2 {
		t.Fatalf("job input not passed through: %+v", jobs.lastRun)
	}
	if jobs.lastRun.Preset != 45*time.Second {
		t.Fatalf("preset = %v", jobs.lastRun.Preset)
	}
	if jobs.lastRun.Style.StyleID != "mozi" {
		t.Fatalf("style = %+v", jobs.lastRun.Style)
	}

	var resp jobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SourceID != "abc123" || len(resp.Clips) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	c := resp.Clips[0]
	if c.StartSec != 10 || c.EndSec != 40 || c.URL != "/static/clips/abc123-1.mp4" {
		t.Fatalf("clip mapping wrong: %+v", c)
	}
}

func TestProcess_RequiresInput(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t, &mockJobs{})
	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/process", map[string]any{"count": 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestProcess_RejectsUnknownMode(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t, &mockJobs{})
	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/process", map[string]any{
		"input": "x.mp4", "mode": "vibes",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestProcess_MapsDomainErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: unknown style", types.ErrInvalidStyle), http.StatusBadRequest},
		{fmt.Errorf("%w: gone", types.ErrSourceUnavailable), http.StatusBadRequest},
		{fmt.Errorf("%w: whisper down", types.ErrTranscriptionUnavailable), http.StatusUnprocessableEntity},
		{fmt.Errorf("disk exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		srv, _, _ := newTestServer(t, &mockJobs{err: tc.err})
		w := doJSON(t, srv.Handler(), http.MethodPost, "/api/process", map[string]any{"input": "x.mp4"})
		if w.Code != tc.want {
			t.Fatalf("err %v: status = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}

func TestUpload_StoresFile(t *testing.T) {
	t.Parallel()

	srv, _, cfg := newTestServer(t, &mockJobs{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "My Talk.MP4")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	part.Write([]byte("fake-video-bytes"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var resp uploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasSuffix(resp.Filename, ".mp4") {
		t.Fatalf("extension not normalized: %q", resp.Filename)
	}
	if filepath.Dir(resp.Path) != cfg.UploadDir {
		t.Fatalf("stored outside upload dir: %q", resp.Path)
	}
	b, err := os.ReadFile(resp.Path)
	if err != nil || string(b) != "fake-video-bytes" {
		t.Fatalf("stored content wrong: %q err=%v", b, err)
	}
}

func TestUpload_RejectsUnknownExtension(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t, &mockJobs{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("file", "notes.txt")
	part.Write([]byte("hello"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestClips_GetAndList(t *testing.T) {
	t.Parallel()

	srv, reg, _ := newTestServer(t, &mockJobs{})
	ctx := context.Background()
	for _, key := range []string{"src1-1", "src1-2", "src2-1"} {
		if err := reg.Register(ctx, sampleClip(key)); err != nil {
			t.Fatalf("seed clip: %v", err)
		}
	}

	w := doJSON(t, srv.Handler(), http.MethodGet, "/api/clips/src1-2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var clip clipResponse
	if err := json.Unmarshal(w.Body.Bytes(), &clip); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if clip.Key != "src1-2" || clip.File != "src1-2.mp4" {
		t.Fatalf("clip = %+v", clip)
	}

	w = doJSON(t, srv.Handler(), http.MethodGet, "/api/clips?source_id=src1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list struct {
		Clips []clipResponse `json:"clips"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Clips) != 2 {
		t.Fatalf("filtered list = %d clips", len(list.Clips))
	}

	w = doJSON(t, srv.Handler(), http.MethodGet, "/api/clips/ghost-9", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing clip status = %d", w.Code)
	}
}

func TestRegenerate_PassesStyle(t *testing.T) {
	t.Parallel()

	jobs := &mockJobs{regenResult: sampleClip("src1-1")}
	srv, _, _ := newTestServer(t, jobs)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/clips/src1-1/regenerate", map[string]any{
		"style": map[string]any{"style_id": "glitch", "font_size": 36},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if jobs.lastRegen.StyleID != "glitch" || jobs.lastRegen.FontSize != 36 {
		t.Fatalf("style not passed: %+v", jobs.lastRegen)
	}
}

func TestRegenerate_UnknownKey(t *testing.T) {
	t.Parallel()

	jobs := &mockJobs{err: fmt.Errorf("%w: src1-9", types.ErrClipNotFound)}
	srv, _, _ := newTestServer(t, jobs)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/clips/src1-9/regenerate", map[string]any{})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestShare_RequiresCredentialsAndPublishes(t *testing.T) {
	t.Parallel()

	jobs := &mockJobs{shareID: "media55"}
	srv, _, _ := newTestServer(t, jobs)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/clips/src1-1/share", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing creds status = %d", w.Code)
	}

	w = doJSON(t, srv.Handler(), http.MethodPost, "/api/clips/src1-1/share", map[string]any{
		"access_token": "tok", "account_id": "acct",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if jobs.lastShare != [3]string{"src1-1", "tok", "acct"} {
		t.Fatalf("share args = %v", jobs.lastShare)
	}
	if !strings.Contains(w.Body.String(), "media55") {
		t.Fatalf("media id missing: %s", w.Body)
	}
}

func TestShare_PublisherFailureIsBadGateway(t *testing.T) {
	t.Parallel()

	jobs := &mockJobs{err: fmt.Errorf("publishing clip src1-1: container stuck")}
	srv, _, _ := newTestServer(t, jobs)

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/clips/src1-1/share", map[string]any{
		"access_token": "tok", "account_id": "acct",
	})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestStyles_ListsBuiltins(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t, &mockJobs{})
	w := doJSON(t, srv.Handler(), http.MethodGet, "/api/styles", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	for _, want := range []string{"karaoke", "deep_diver", "classic"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Fatalf("styles missing %q: %s", want, w.Body)
		}
	}
}

func TestHealth_ReportsChecks(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t, &mockJobs{})
	w := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["registry"] != "ok" || resp.Checks["store"] != "local" {
		t.Fatalf("health = %+v", resp)
	}
}

func TestStatic_ServesFinishedClips(t *testing.T) {
	t.Parallel()

	srv, _, cfg := newTestServer(t, &mockJobs{})
	if err := os.WriteFile(filepath.Join(cfg.OutputDir, "src1-1.mp4"), []byte("clipbytes"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}

	w := doJSON(t, srv.Handler(), http.MethodGet, "/static/clips/src1-1.mp4", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.String() != "clipbytes" {
		t.Fatalf("body = %q", w.Body)
	}
}

func TestStats_CombinesRegistryAndActiveJobs(t *testing.T) {
	t.Parallel()

	srv, reg, _ := newTestServer(t, &mockJobs{})
	if err := reg.Register(context.Background(), sampleClip("src1-1")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := doJSON(t, srv.Handler(), http.MethodGet, "/api/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp statsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Clips != 1 || resp.ActiveJobs != 0 {
		t.Fatalf("stats = %+v", resp)
	}
}
