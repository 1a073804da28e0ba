// Package watch turns a directory into a drop box: video files placed in it
// are run through the clip pipeline once they stop changing.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/types"
	"github.com/ovoronkov/reelcut/internal/usecase"
)

// Jobs is the slice of the usecase the watcher needs.
type Jobs interface {
	Run(ctx context.Context, in usecase.Input) (types.JobResult, error)
}

const (
	doneDir   = "done"
	failedDir = "failed"
)

var videoExt = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".webm": true, ".avi": true, ".m4v": true,
}

// Watcher monitors an inbox directory and submits each settled video file as
// a processing job. Finished inputs are moved into done/ or failed/ inside
// the inbox so a restart never reprocesses them.
type Watcher struct {
	jobs     Jobs
	dir      string
	settle   time.Duration
	template usecase.Input
	log      zerolog.Logger

	ctx context.Context

	// Coalesces the Create+Write bursts a copy-in produces. A timer fires
	// only after the file has been quiet for one settle interval.
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// New builds a watcher over dir. The template input supplies everything but
// the source path, which is filled in per file.
func New(jobs Jobs, dir string, settle time.Duration, template usecase.Input, log zerolog.Logger) *Watcher {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Watcher{
		jobs:     jobs,
		dir:      dir,
		settle:   settle,
		template: template,
		log:      log.With().Str("component", "watch").Logger(),
		timers:   make(map[string]*time.Timer),
	}
}

// Run watches the inbox until ctx is cancelled. Files already sitting in the
// inbox at startup are picked up through the same settle path as new drops.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting inbox watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	w.ctx = ctx
	w.sweep()
	w.log.Info().Str("dir", w.dir).Dur("settle", w.settle).Msg("watching inbox")

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				w.shutdown()
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			info, err := os.Stat(ev.Name)
			if err != nil || info.IsDir() {
				continue
			}
			if !videoExt[strings.ToLower(filepath.Ext(ev.Name))] {
				w.skipped.Add(1)
				continue
			}
			w.schedule(ev.Name)

		case err, ok := <-fsw.Errors:
			if !ok {
				w.shutdown()
				return nil
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// sweep schedules video files that were dropped while nothing was watching.
func (w *Watcher) sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Msg("initial inbox scan failed")
		return
	}
	pending := 0
	for _, e := range entries {
		if e.IsDir() || !videoExt[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		w.schedule(filepath.Join(w.dir, e.Name()))
		pending++
	}
	if pending > 0 {
		w.log.Info().Int("pending", pending).Msg("found existing inbox files")
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() { w.fire(path) })
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	w.process(path)
}

func (w *Watcher) process(path string) {
	log := w.log.With().Str("file", filepath.Base(path)).Logger()

	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		w.skipped.Add(1)
		return
	}

	in := w.template
	in.Source = path

	log.Info().Msg("processing inbox file")
	res, err := w.jobs.Run(w.ctx, in)
	if err != nil {
		w.failed.Add(1)
		log.Error().Err(err).Msg("inbox job failed")
		w.stash(path, failedDir)
		return
	}

	w.processed.Add(1)
	log.Info().
		Str("source_id", res.SourceID).
		Int("clips", len(res.Clips)).
		Int("failed", len(res.Failures)).
		Msg("inbox job finished")
	w.stash(path, doneDir)
}

// stash moves a handled input out of the watched directory root.
func (w *Watcher) stash(path, sub string) {
	dst := filepath.Join(w.dir, sub)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		w.log.Warn().Err(err).Str("dir", dst).Msg("creating inbox subdirectory failed")
		return
	}
	if err := os.Rename(path, filepath.Join(dst, filepath.Base(path))); err != nil {
		w.log.Warn().Err(err).Str("file", path).Msg("moving handled inbox file failed")
	}
}

// shutdown stops pending timers and waits for in-flight jobs.
func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()

	w.log.Info().
		Int64("processed", w.processed.Load()).
		Int64("failed", w.failed.Load()).
		Int64("skipped", w.skipped.Load()).
		Msg("watcher stopped")
}
