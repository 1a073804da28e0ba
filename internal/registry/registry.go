// Package registry persists rendered clips, per-source transcripts and job
// summaries in a sqlite database. Every clip is addressed by its stable key
// "<sourceID>-<index>"; nothing in here parses filenames.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/ovoronkov/reelcut/internal/types"
)

type Registry struct {
	db   *sql.DB
	path string
	lock *flock.Flock
	log  zerolog.Logger

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// Stats is a snapshot for the metrics collector and the CLI.
type Stats struct {
	Sources int
	Clips   int
	Jobs    int
}

// Open connects to (or creates) the registry database at dbPath and takes a
// process-exclusive lock next to it, so two instances never share one
// registry.
func Open(dbPath string, log zerolog.Logger) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire registry lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("registry %s is already in use by another process", dbPath)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	r := &Registry{
		db:       db,
		path:     dbPath,
		lock:     lock,
		log:      log,
		keyLocks: make(map[string]*sync.Mutex),
	}
	if err := r.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return r, nil
}

func (r *Registry) Close() error {
	err := r.db.Close()
	if unlockErr := r.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

func (r *Registry) Path() string { return r.path }

// KeyLock returns the mutex serializing mutations for one clip key. Callers
// hold it across a full render-or-regenerate of that key.
func (r *Registry) KeyLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.keyLocks[key]
	if !ok {
		m = &sync.Mutex{}
		r.keyLocks[key] = m
	}
	return m
}

func (r *Registry) RegisterSource(ctx context.Context, src types.MediaSource, input string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sources (id, input, path, duration_sec, width, height, fps, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET input=excluded.input, path=excluded.path,
		     duration_sec=excluded.duration_sec, width=excluded.width,
		     height=excluded.height, fps=excluded.fps`,
		src.ID, input, src.Path, src.Duration.Seconds(), src.Width, src.Height, src.FPS, now)
	if err != nil {
		return fmt.Errorf("register source %s: %w", src.ID, err)
	}
	return nil
}

// Source returns the stored media source and the original input it came from.
func (r *Registry) Source(ctx context.Context, id string) (types.MediaSource, string, error) {
	var (
		src      types.MediaSource
		input    string
		duration float64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, input, path, duration_sec, width, height, fps FROM sources WHERE id = ?`, id).
		Scan(&src.ID, &input, &src.Path, &duration, &src.Width, &src.Height, &src.FPS)
	if errors.Is(err, sql.ErrNoRows) {
		return types.MediaSource{}, "", fmt.Errorf("source %s: %w", id, types.ErrClipNotFound)
	}
	if err != nil {
		return types.MediaSource{}, "", fmt.Errorf("load source %s: %w", id, err)
	}
	src.Duration = time.Duration(duration * float64(time.Second))
	return src, input, nil
}

func (r *Registry) Register(ctx context.Context, clip types.Clip) error {
	styleJSON, metaJSON, err := marshalClipJSON(clip)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO clips (clip_key, source_id, idx, start_sec, end_sec, score, reason,
		     style_json, output_path, cut_path, archive_url, metadata_json, created_at, rendered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(clip_key) DO UPDATE SET
		     start_sec=excluded.start_sec, end_sec=excluded.end_sec, score=excluded.score,
		     reason=excluded.reason, style_json=excluded.style_json,
		     output_path=excluded.output_path, cut_path=excluded.cut_path,
		     archive_url=excluded.archive_url, metadata_json=excluded.metadata_json,
		     rendered_at=excluded.rendered_at`,
		clip.Key, clip.SourceID, clip.Range.Index, clip.Range.Start.Seconds(), clip.Range.End.Seconds(),
		clip.Range.Score, clip.Range.Reason, styleJSON, clip.OutputPath, clip.CutPath,
		clip.ArchiveURL, metaJSON,
		clip.CreatedAt.UTC().Format(time.RFC3339Nano), clip.RenderedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("register clip %s: %w", clip.Key, err)
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, key string) (types.Clip, error) {
	row := r.db.QueryRowContext(ctx, selectClipSQL+" WHERE clip_key = ?", key)
	clip, err := scanClip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Clip{}, fmt.Errorf("clip %s: %w", key, types.ErrClipNotFound)
	}
	if err != nil {
		return types.Clip{}, fmt.Errorf("load clip %s: %w", key, err)
	}
	return clip, nil
}

// Update rewrites an existing clip row. Unknown keys are an error so a failed
// regeneration never invents registry entries.
func (r *Registry) Update(ctx context.Context, key string, clip types.Clip) error {
	styleJSON, metaJSON, err := marshalClipJSON(clip)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE clips SET style_json = ?, output_path = ?, cut_path = ?, archive_url = ?,
		     metadata_json = ?, rendered_at = ?
		 WHERE clip_key = ?`,
		styleJSON, clip.OutputPath, clip.CutPath, clip.ArchiveURL, metaJSON,
		clip.RenderedAt.UTC().Format(time.RFC3339Nano), key)
	if err != nil {
		return fmt.Errorf("update clip %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update clip %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("clip %s: %w", key, types.ErrClipNotFound)
	}
	return nil
}

// List returns clips for one source, or all clips when sourceID is empty,
// ordered by source and index.
func (r *Registry) List(ctx context.Context, sourceID string) ([]types.Clip, error) {
	query := selectClipSQL
	args := []any{}
	if sourceID != "" {
		query += " WHERE source_id = ?"
		args = append(args, sourceID)
	}
	query += " ORDER BY source_id, idx"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	defer rows.Close()

	var out []types.Clip
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		out = append(out, clip)
	}
	return out, rows.Err()
}

func (r *Registry) SaveTranscript(ctx context.Context, sourceID string, tr types.Transcript) error {
	tokens, err := json.Marshal(tr.Tokens)
	if err != nil {
		return fmt.Errorf("marshal transcript tokens: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO transcripts (source_id, language, tokens_json, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET language=excluded.language, tokens_json=excluded.tokens_json`,
		sourceID, tr.Language, string(tokens), now)
	if err != nil {
		return fmt.Errorf("save transcript for %s: %w", sourceID, err)
	}
	return nil
}

func (r *Registry) Transcript(ctx context.Context, sourceID string) (types.Transcript, error) {
	var (
		language string
		tokens   string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT language, tokens_json FROM transcripts WHERE source_id = ?`, sourceID).
		Scan(&language, &tokens)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Transcript{}, fmt.Errorf("transcript for %s: %w", sourceID, types.ErrNoTranscript)
	}
	if err != nil {
		return types.Transcript{}, fmt.Errorf("load transcript for %s: %w", sourceID, err)
	}
	var tr types.Transcript
	tr.Language = language
	if err := json.Unmarshal([]byte(tokens), &tr.Tokens); err != nil {
		return types.Transcript{}, fmt.Errorf("decode transcript for %s: %w", sourceID, err)
	}
	return tr, nil
}

func (r *Registry) RecordJob(ctx context.Context, input string, res types.JobResult) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (source_id, input, clip_count, failure_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		res.SourceID, input, len(res.Clips), len(res.Failures), now)
	if err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	return nil
}

func (r *Registry) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	for _, q := range []struct {
		sql string
		dst *int
	}{
		{"SELECT COUNT(1) FROM sources", &s.Sources},
		{"SELECT COUNT(1) FROM clips", &s.Clips},
		{"SELECT COUNT(1) FROM jobs", &s.Jobs},
	} {
		if err := r.db.QueryRowContext(ctx, q.sql).Scan(q.dst); err != nil {
			return Stats{}, fmt.Errorf("registry stats: %w", err)
		}
	}
	return s, nil
}

const selectClipSQL = `SELECT clip_key, source_id, idx, start_sec, end_sec, score, reason,
    style_json, output_path, cut_path, archive_url, metadata_json, created_at, rendered_at FROM clips`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClip(row rowScanner) (types.Clip, error) {
	var (
		clip       types.Clip
		startSec   float64
		endSec     float64
		styleJSON  string
		metaJSON   string
		createdAt  string
		renderedAt string
	)
	err := row.Scan(&clip.Key, &clip.SourceID, &clip.Range.Index, &startSec, &endSec,
		&clip.Range.Score, &clip.Range.Reason, &styleJSON, &clip.OutputPath, &clip.CutPath,
		&clip.ArchiveURL, &metaJSON, &createdAt, &renderedAt)
	if err != nil {
		return types.Clip{}, err
	}
	clip.Range.Start = time.Duration(startSec * float64(time.Second))
	clip.Range.End = time.Duration(endSec * float64(time.Second))
	if err := json.Unmarshal([]byte(styleJSON), &clip.Style); err != nil {
		return types.Clip{}, fmt.Errorf("decode style: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &clip.Metadata); err != nil {
		return types.Clip{}, fmt.Errorf("decode metadata: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		clip.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, renderedAt); err == nil {
		clip.RenderedAt = t
	}
	return clip, nil
}

func marshalClipJSON(clip types.Clip) (string, string, error) {
	styleJSON, err := json.Marshal(clip.Style)
	if err != nil {
		return "", "", fmt.Errorf("marshal style: %w", err)
	}
	metaJSON, err := json.Marshal(clip.Metadata)
	if err != nil {
		return "", "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(styleJSON), string(metaJSON), nil
}
