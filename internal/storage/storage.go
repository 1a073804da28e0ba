// Package storage owns finished clip files: a local directory always, plus
// an optional S3 mirror for archive and share URLs.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/config"
)

// ClipStore abstracts where finished clips live.
type ClipStore interface {
	// Promote atomically moves a finished render into the store and returns
	// its canonical local path.
	Promote(ctx context.Context, renderedPath, filename string) (string, error)

	// Archive mirrors a stored clip to the backup tier and returns a stable
	// object reference. Local-only stores return "".
	Archive(ctx context.Context, filename string) (string, error)

	// ShareURL returns a time-limited publicly fetchable URL for the clip.
	// Local-only stores return "".
	ShareURL(ctx context.Context, filename string) (string, error)

	// LocalPath returns the on-disk path if the clip exists locally, else "".
	LocalPath(filename string) string

	// Type returns "local" or "s3-mirrored".
	Type() string
}

// New builds the clip store from config. With S3 configured, bucket access is
// verified before the store is handed out.
func New(cfg *config.Config, log zerolog.Logger) (ClipStore, error) {
	local := NewLocalStore(cfg.OutputDir)
	if !cfg.S3Enabled() {
		return local, nil
	}

	s3store, err := newS3Mirror(cfg, local, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.headBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.S3Bucket, cfg.S3Endpoint, err)
	}
	log.Info().Str("bucket", cfg.S3Bucket).Str("endpoint", cfg.S3Endpoint).Msg("S3 connection verified")
	return s3store, nil
}
