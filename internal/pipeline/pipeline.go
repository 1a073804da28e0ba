// Package pipeline assembles the application: configuration in, wired
// adapters, registry, storage and the usecase out. Every entry point (CLI
// commands, HTTP server, inbox watcher) runs on one App.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/config"
	"github.com/ovoronkov/reelcut/internal/domain/captions"
	"github.com/ovoronkov/reelcut/internal/ports"
	"github.com/ovoronkov/reelcut/internal/ports/adapters/ffmpeg"
	"github.com/ovoronkov/reelcut/internal/ports/adapters/instagram"
	"github.com/ovoronkov/reelcut/internal/ports/adapters/openrouter"
	"github.com/ovoronkov/reelcut/internal/ports/adapters/whispercpp"
	"github.com/ovoronkov/reelcut/internal/ports/adapters/whisperhttp"
	"github.com/ovoronkov/reelcut/internal/ports/adapters/ytdlp"
	"github.com/ovoronkov/reelcut/internal/registry"
	"github.com/ovoronkov/reelcut/internal/storage"
	"github.com/ovoronkov/reelcut/internal/types"
	"github.com/ovoronkov/reelcut/internal/usecase"
)

type App struct {
	Cfg      *config.Config
	Log      zerolog.Logger
	Registry *registry.Registry
	Store    storage.ClipStore
	Styles   *captions.Catalog
	Usecase  *usecase.Usecase
}

// New wires the full dependency graph. It fails fast on anything that would
// make later jobs undefined: a rejected OpenRouter base URL, an unreadable
// styles file, an unreachable S3 bucket, a registry locked by another
// process.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := openrouter.ValidateBaseURL(cfg.OpenRouterBaseURL, cfg.OpenRouterAllowedHosts); err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.OutputDir, cfg.WorkDir, cfg.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	styles := captions.NewCatalog()
	if cfg.StylesFile != "" {
		if err := styles.LoadStylesFile(cfg.StylesFile); err != nil {
			return nil, fmt.Errorf("loading styles from %s: %w", cfg.StylesFile, err)
		}
	}

	reg, err := registry.Open(cfg.RegistryPath, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg, log)
	if err != nil {
		reg.Close()
		return nil, err
	}

	deps := usecase.Deps{
		Video:       ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath),
		Downloader:  ytdlp.New(cfg.YtdlpPath),
		Transcriber: transcriber(cfg, log),
		Publisher:   instagram.New(cfg.InstagramBaseURL),
		Registry:    reg,
		Store:       store,
		Styles:      styles,
		Config:      cfg,
		Log:         log,
	}
	if cfg.OpenRouterAPIKey != "" {
		llm := openrouter.New(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.OpenRouterBaseURL)
		deps.Scorer = llm
		deps.Metadata = llm
	} else {
		log.Info().Msg("no OpenRouter key, selection uses lexical scoring only")
	}

	return &App{
		Cfg:      cfg,
		Log:      log,
		Registry: reg,
		Store:    store,
		Styles:   styles,
		Usecase:  usecase.New(deps),
	}, nil
}

func (a *App) Close() error { return a.Registry.Close() }

// transcriber picks the configured transcription backend: the hosted Whisper
// API when a URL is set, local whisper.cpp when a binary is set, otherwise
// none. Without one, selection runs on audio energy and clips carry no
// captions.
func transcriber(cfg *config.Config, log zerolog.Logger) ports.Transcriber {
	switch {
	case cfg.WhisperURL != "":
		return whisperhttp.New(cfg.WhisperURL, cfg.WhisperModel, cfg.WhisperAPIKey, cfg.WhisperTimeout)
	case cfg.WhisperBin != "":
		return whispercpp.New(cfg.WhisperBin, cfg.WhisperCppModel)
	default:
		log.Warn().Msg("no transcriber configured, clips will have no captions")
		return nil
	}
}

// WriteManifest drops the job manifest next to the outputs and returns its
// path.
func WriteManifest(dir string, m types.Manifest) (string, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(dir, "manifest-"+m.SourceID+".json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ensure adapters implement ports
var _ ports.VideoToolkit = (*ffmpeg.Adapter)(nil)
var _ ports.Downloader = (*ytdlp.Adapter)(nil)
var _ ports.Transcriber = (*whisperhttp.Adapter)(nil)
var _ ports.Transcriber = (*whispercpp.Adapter)(nil)
var _ ports.RelevanceScorer = (*openrouter.Adapter)(nil)
var _ ports.MetadataGenerator = (*openrouter.Adapter)(nil)
var _ ports.Publisher = (*instagram.Adapter)(nil)
