// Package api exposes the processing pipeline over HTTP: job submission,
// clip lookup, regeneration, sharing, style listing, plus static serving of
// finished clips.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/config"
	"github.com/ovoronkov/reelcut/internal/domain/captions"
	"github.com/ovoronkov/reelcut/internal/metrics"
	"github.com/ovoronkov/reelcut/internal/registry"
	"github.com/ovoronkov/reelcut/internal/storage"
	"github.com/ovoronkov/reelcut/internal/types"
	"github.com/ovoronkov/reelcut/internal/usecase"
)

// JobService is the slice of the usecase the HTTP layer needs. *usecase.Usecase
// satisfies it.
type JobService interface {
	Run(ctx context.Context, in usecase.Input) (types.JobResult, error)
	Regenerate(ctx context.Context, key string, spec types.CaptionStyleSpec) (types.Clip, error)
	Share(ctx context.Context, key, accessToken, accountID string) (string, error)
	ActiveJobs() int
}

type Deps struct {
	Jobs     JobService
	Registry *registry.Registry
	Store    storage.ClipStore
	Styles   *captions.Catalog
	Cfg      *config.Config
	Version  string
	Log      zerolog.Logger
}

type Server struct {
	http    *http.Server
	d       Deps
	log     zerolog.Logger
	started time.Time
}

func NewServer(d Deps) *Server {
	s := &Server{
		d:       d,
		log:     d.Log.With().Str("component", "api").Logger(),
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(s.log))
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/process", s.handleProcess)
		r.Post("/upload", s.handleUpload)
		r.Get("/clips", s.handleListClips)
		r.Get("/clips/{key}", s.handleGetClip)
		r.Post("/clips/{key}/regenerate", s.handleRegenerate)
		r.Post("/clips/{key}/share", s.handleShare)
		r.Get("/styles", s.handleStyles)
		r.Get("/stats", s.handleStats)
	})

	// Finished clips are served straight from the output directory; publish
	// URLs point here when no object store is configured.
	fileServer := http.StripPrefix("/static/clips/", http.FileServer(http.Dir(d.Cfg.OutputDir)))
	r.Get("/static/clips/*", fileServer.ServeHTTP)

	s.http = &http.Server{
		Addr:    d.Cfg.HTTPAddr,
		Handler: r,
		// WriteTimeout has to cover a full synchronous processing job.
		ReadTimeout:  d.Cfg.ReadTimeout,
		WriteTimeout: d.Cfg.WriteTimeout,
		IdleTimeout:  d.Cfg.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
