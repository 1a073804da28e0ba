package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DataDir string `env:"DATA_DIR" envDefault:"./data"`

	// Derived from DataDir when empty.
	OutputDir    string `env:"OUTPUT_DIR"`
	WorkDir      string `env:"WORK_DIR"`
	UploadDir    string `env:"UPLOAD_DIR"`
	RegistryPath string `env:"REGISTRY_PATH"`

	FFmpegPath  string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath string `env:"FFPROBE_PATH" envDefault:"ffprobe"`
	YtdlpPath   string `env:"YTDLP_PATH" envDefault:"yt-dlp"`

	// Transcription: remote OpenAI-compatible endpoint takes priority when set,
	// otherwise a local whisper.cpp binary is used when configured.
	WhisperURL     string        `env:"WHISPER_URL"`
	WhisperModel   string        `env:"WHISPER_MODEL" envDefault:"whisper-1"`
	WhisperAPIKey  string        `env:"WHISPER_API_KEY"`
	WhisperTimeout time.Duration `env:"WHISPER_TIMEOUT" envDefault:"10m"`
	WhisperBin     string        `env:"WHISPER_BIN"`
	WhisperCppModel string       `env:"WHISPER_CPP_MODEL"`

	OpenRouterAPIKey       string   `env:"OPENROUTER_API_KEY"`
	OpenRouterModel        string   `env:"OPENROUTER_MODEL" envDefault:"z-ai/glm-4.5-air:free"`
	OpenRouterBaseURL      string   `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai"`
	OpenRouterAllowedHosts []string `env:"OPENROUTER_ALLOWED_HOSTS" envSeparator:","`

	InstagramBaseURL string `env:"INSTAGRAM_BASE_URL" envDefault:"https://graph.facebook.com/v19.0"`

	// Selection tunables. See the Selection docs on each field's effect.
	ClipPreset          time.Duration `env:"CLIP_PRESET" envDefault:"60s"`
	StrideFraction      float64       `env:"STRIDE_FRACTION" envDefault:"0.5"`
	OverlapTolerance    time.Duration `env:"OVERLAP_TOLERANCE" envDefault:"0s"`
	BackfillMinStartGap time.Duration `env:"BACKFILL_MIN_START_GAP" envDefault:"10s"`
	HeuristicWeight     float64       `env:"HEURISTIC_WEIGHT" envDefault:"0.4"`
	RelevanceWeight     float64       `env:"RELEVANCE_WEIGHT" envDefault:"0.6"`

	// Render tunables.
	SeekTolerance     time.Duration `env:"SEEK_TOLERANCE" envDefault:"40ms"`
	SampleInterval    time.Duration `env:"SAMPLE_INTERVAL" envDefault:"500ms"`
	SmoothingAlpha    float64       `env:"SMOOTHING_ALPHA" envDefault:"0.25"`
	MotionWeight      float64       `env:"MOTION_WEIGHT" envDefault:"2.0"`
	RenderConcurrency int           `env:"RENDER_CONCURRENCY"`
	KeepReplaced      bool          `env:"KEEP_REPLACED_OUTPUTS" envDefault:"false"`
	WatermarkText     string        `env:"WATERMARK_TEXT"`
	WatermarkOpacity  float64       `env:"WATERMARK_OPACITY" envDefault:"0.8"`
	WatermarkFontSize int           `env:"WATERMARK_FONT_SIZE" envDefault:"24"`

	// Optional TOML file with extra caption styles (see captions.LoadStyleFile).
	StylesFile string `env:"STYLES_FILE"`

	// Optional S3 mirror for finished clips.
	S3Bucket        string        `env:"S3_BUCKET"`
	S3Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3Prefix        string        `env:"S3_PREFIX" envDefault:"clips"`
	S3Endpoint      string        `env:"S3_ENDPOINT"`
	S3AccessKey     string        `env:"S3_ACCESS_KEY"`
	S3SecretKey     string        `env:"S3_SECRET_KEY"`
	S3PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"24h"`

	// Base URL under which /static/clips is reachable from outside. Needed for
	// publishing locally stored clips.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	WatchSettle time.Duration `env:"WATCH_SETTLE" envDefault:"2s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile   string
	DataDir   string
	OutputDir string
	HTTPAddr  string
	LogLevel  string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file > defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}
	if overrides.OutputDir != "" {
		cfg.OutputDir = overrides.OutputDir
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}

	cfg.applyDerived()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDerived() {
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.DataDir, "processed")
	}
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(c.DataDir, "work")
	}
	if c.UploadDir == "" {
		c.UploadDir = filepath.Join(c.DataDir, "uploads")
	}
	if c.RegistryPath == "" {
		c.RegistryPath = filepath.Join(c.DataDir, "registry.db")
	}
	if c.RenderConcurrency <= 0 {
		c.RenderConcurrency = runtime.NumCPU()
	}
}

func (c *Config) validate() error {
	if c.ClipPreset <= 0 {
		return fmt.Errorf("CLIP_PRESET must be > 0")
	}
	if c.StrideFraction <= 0 || c.StrideFraction > 1 {
		return fmt.Errorf("STRIDE_FRACTION must be in (0, 1]")
	}
	if c.OverlapTolerance < 0 {
		return fmt.Errorf("OVERLAP_TOLERANCE must be >= 0")
	}
	if c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1 {
		return fmt.Errorf("SMOOTHING_ALPHA must be in (0, 1]")
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("SAMPLE_INTERVAL must be > 0")
	}
	if c.MotionWeight < 0 {
		return fmt.Errorf("MOTION_WEIGHT must be >= 0")
	}
	if c.WatermarkOpacity < 0 || c.WatermarkOpacity > 1 {
		return fmt.Errorf("WATERMARK_OPACITY must be in [0, 1]")
	}
	if c.HeuristicWeight < 0 || c.RelevanceWeight < 0 {
		return fmt.Errorf("score weights must be >= 0")
	}
	return nil
}

// S3Enabled reports whether finished clips should be mirrored to S3.
func (c *Config) S3Enabled() bool { return c.S3Bucket != "" }
