package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/mediatypes"
	"subtitle-indexer/internal/status"
	"subtitle-indexer/internal/textutil"
)

// DatabaseFile is the SQLite file created under the data directory.
const DatabaseFile = "subtitles.db"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds all application configuration.
type Config struct {
	MediaDir        string `toml:"media_dir"`
	DataDir         string `toml:"data_dir"`
	Port            string `toml:"port"`
	MetricsPort     string `toml:"metrics_port"`
	MetricsEnabled  bool   `toml:"metrics_enabled"`
	LogLevel        string `toml:"log_level"`
	LogHealthChecks bool   `toml:"log_health_checks"`

	Index IndexConfig `toml:"index"`

	// Derived
	ConfigFile   string `toml:"-"`
	DatabasePath string `toml:"-"`
	StatusPath   string `toml:"-"`
}

// IndexConfig holds the indexer settings, the [index] table in TOML.
type IndexConfig struct {
	Strategy string `toml:"strategy"`
	// Workers bounds the parallel strategy. Zero sizes it from the CPU count.
	Workers int `toml:"workers"`
	// Schedule is a cron expression for incremental runs. Empty disables it.
	Schedule          string   `toml:"schedule"`
	OnStart           bool     `toml:"on_start"`
	MediaExtensions   []string `toml:"media_extensions"`
	SubtitleExtension string   `toml:"subtitle_extension"`
	MinEnglishRatio   float64  `toml:"min_english_ratio"`
	MaxProcessingTime Duration `toml:"max_processing_time"`
	DetectLanguage    bool     `toml:"detect_language"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		MediaDir:        "/media",
		DataDir:         "/data",
		Port:            "8080",
		MetricsPort:     "9090",
		MetricsEnabled:  true,
		LogHealthChecks: true,
		Index: IndexConfig{
			Strategy:          "standard",
			MediaExtensions:   mediatypes.DefaultMediaExtensions,
			SubtitleExtension: mediatypes.DefaultSubtitleExtension,
			MinEnglishRatio:   textutil.DefaultMinEnglishRatio,
			MaxProcessingTime: Duration{10 * time.Minute},
		},
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the TOML file named by CONFIG_FILE, a .env file (ENV_FILE, default
// ".env") that never overrides the real environment, and environment
// variables. Paths are made absolute and values validated. Load does not
// touch the directories; see PrepareDirectories.
func Load() (*Config, error) {
	return LoadWithOverrides(Overrides{})
}

// Overrides take precedence over every other source. Zero fields are
// ignored. Command-line flags use them.
type Overrides struct {
	MediaDir string
	DataDir  string
	Strategy string
	Workers  int
}

func (o Overrides) apply(cfg *Config) {
	if o.MediaDir != "" {
		cfg.MediaDir = o.MediaDir
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if o.Strategy != "" {
		cfg.Index.Strategy = o.Strategy
	}
	if o.Workers > 0 {
		cfg.Index.Workers = o.Workers
	}
}

// LoadWithOverrides is Load with o applied after the environment.
func LoadWithOverrides(o Overrides) (*Config, error) {
	cfg := Defaults()

	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	applyEnv(&cfg)
	o.apply(&cfg)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	dec := toml.NewDecoder(file)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.MediaDir = getEnv("MEDIA_DIR", cfg.MediaDir)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.MetricsPort = getEnv("METRICS_PORT", cfg.MetricsPort)
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogHealthChecks = getEnvBool("LOG_HEALTH_CHECKS", cfg.LogHealthChecks)

	idx := &cfg.Index
	idx.Strategy = getEnv("INDEX_STRATEGY", idx.Strategy)
	idx.Workers = getEnvInt("INDEX_WORKERS", idx.Workers)
	idx.Schedule = getEnv("INDEX_SCHEDULE", idx.Schedule)
	idx.OnStart = getEnvBool("INDEX_ON_START", idx.OnStart)
	if list := os.Getenv("MEDIA_EXTENSIONS"); list != "" {
		idx.MediaExtensions = mediatypes.ParseExtensions(list).Sorted()
	}
	idx.SubtitleExtension = getEnv("SUBTITLE_EXTENSION", idx.SubtitleExtension)
	idx.MinEnglishRatio = getEnvFloat("MIN_ENGLISH_RATIO", idx.MinEnglishRatio)
	idx.MaxProcessingTime.Duration = getEnvDuration("MAX_PROCESSING_TIME", idx.MaxProcessingTime.Duration)
	idx.DetectLanguage = getEnvBool("DETECT_LANGUAGE", idx.DetectLanguage)
}

func (c *Config) normalize() error {
	var err error
	if c.MediaDir, err = filepath.Abs(c.MediaDir); err != nil {
		return fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	if c.DataDir, err = filepath.Abs(c.DataDir); err != nil {
		return fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	c.DatabasePath = filepath.Join(c.DataDir, DatabaseFile)
	c.StatusPath = filepath.Join(c.DataDir, status.FileName)

	c.Index.Strategy = strings.ToLower(strings.TrimSpace(c.Index.Strategy))
	c.Index.SubtitleExtension = mediatypes.NormalizeExtension(c.Index.SubtitleExtension)
	c.Index.MediaExtensions = mediatypes.NewExtensionSet(c.Index.MediaExtensions...).Sorted()
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Index.Strategy {
	case "standard", "batch", "parallel", "delayed_language":
	default:
		return fmt.Errorf("%w: unknown index strategy %q", ErrInvalidConfig, c.Index.Strategy)
	}
	if c.Index.Workers < 0 {
		return fmt.Errorf("%w: index workers must not be negative", ErrInvalidConfig)
	}
	if c.Index.MinEnglishRatio <= 0 || c.Index.MinEnglishRatio > 1 {
		return fmt.Errorf("%w: min english ratio %v is outside (0, 1]", ErrInvalidConfig, c.Index.MinEnglishRatio)
	}
	if c.Index.MaxProcessingTime.Duration <= 0 {
		return fmt.Errorf("%w: max processing time must be positive", ErrInvalidConfig)
	}
	if len(c.Index.MediaExtensions) == 0 {
		return fmt.Errorf("%w: no media extensions", ErrInvalidConfig)
	}
	if c.Index.SubtitleExtension == "" {
		return fmt.Errorf("%w: no subtitle extension", ErrInvalidConfig)
	}
	if c.Index.Schedule != "" {
		if _, err := cron.ParseStandard(c.Index.Schedule); err != nil {
			return fmt.Errorf("%w: index schedule %q: %v", ErrInvalidConfig, c.Index.Schedule, err)
		}
	}
	if c.LogLevel != "" {
		if _, ok := logging.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
		}
	}
	if c.Port == "" {
		return fmt.Errorf("%w: port is empty", ErrInvalidConfig)
	}
	return nil
}

// PrepareDirectories creates the data directory and checks it is writable.
// A missing media directory is only a warning since indexing reports it
// per run.
func PrepareDirectories(cfg *Config) error {
	if err := ensureDirectory(cfg.MediaDir, "media"); err != nil {
		logging.Warn("  Media directory issue: %v", err)
	}

	if err := ensureDirectory(cfg.DataDir, "data"); err != nil {
		return fmt.Errorf("data directory error: %w", err)
	}

	logging.Debug("  Testing data directory write access...")
	if err := testWriteAccess(cfg.DataDir); err != nil {
		return fmt.Errorf("data directory is not writable (required for database and status): %w", err)
	}
	logging.Info("  [OK] Data directory is writable")
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn("Invalid number for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
