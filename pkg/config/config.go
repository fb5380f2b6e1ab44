// Package config loads recipelens settings from the environment (and an
// optional .env file) using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	DB         DBConfig         `mapstructure:"db"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Upload     UploadConfig     `mapstructure:"upload"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Ingredient IngredientConfig `mapstructure:"ingredient"`
	Match      MatchConfig      `mapstructure:"match"`
	Log        LogConfig        `mapstructure:"log"`
	Watch      WatchConfig      `mapstructure:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	GinMode         string        `mapstructure:"gin_mode"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	Seed        bool   `mapstructure:"seed"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxIdle     int    `mapstructure:"max_idle"`
}

// AuthConfig holds credential checks applied to the API.
type AuthConfig struct {
	Required   bool          `mapstructure:"required"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	APIKey     string        `mapstructure:"api_key"`
	APIKeyHash string        `mapstructure:"api_key_hash"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	Issuer     string        `mapstructure:"issuer"`
}

// UploadConfig limits accepted image uploads.
type UploadConfig struct {
	MaxBytes    int64    `mapstructure:"max_bytes"`
	MaxPixels   int      `mapstructure:"max_pixels"`
	AllowedExts []string `mapstructure:"allowed_exts"`
}

// NeuralConfig selects the neural OCR backend.
// Provider is one of "gemini", "openai" or "none".
type NeuralConfig struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
}

// OCRConfig holds text extraction settings.
type OCRConfig struct {
	Language       string        `mapstructure:"language"`
	Workers        int           `mapstructure:"workers"`
	EngineTimeout  time.Duration `mapstructure:"engine_timeout"`
	MergeThreshold float64       `mapstructure:"merge_threshold"`
	Tesseract      bool          `mapstructure:"tesseract"`
	Neural         NeuralConfig  `mapstructure:"neural"`
}

// IngredientConfig points at an optional catalog override file.
type IngredientConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
}

// MatchConfig caps how many recipes the matching endpoints return.
type MatchConfig struct {
	ProcessImageLimit int `mapstructure:"process_image_limit"`
	FindLimit         int `mapstructure:"find_limit"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WatchConfig drives the inbox folder processor.
type WatchConfig struct {
	Dir          string        `mapstructure:"dir"`
	ProcessedDir string        `mapstructure:"processed_dir"`
	Workers      int           `mapstructure:"workers"`
	Debounce     time.Duration `mapstructure:"debounce"`
}

// Load reads .env (if present) and then configuration from environment
// variables with the RECIPELENS_ prefix. A few unprefixed legacy names
// (DB_DSN, JWT_SECRET, DB_AUTO_MIGRATE, API_KEY) are honoured as well.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RECIPELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	legacy := map[string]string{
		"db.dsn":          "DB_DSN",
		"db.auto_migrate": "DB_AUTO_MIGRATE",
		"auth.jwt_secret": "JWT_SECRET",
		"auth.api_key":    "API_KEY",
		"auth.required":   "REQUIRED_API_KEY",
	}
	for key, env := range legacy {
		prefixed := "RECIPELENS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Upload.AllowedExts = splitList(cfg.Upload.AllowedExts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8081")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.gin_mode", "release")

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("db.seed", true)
	v.SetDefault("db.max_open", 20)
	v.SetDefault("db.max_idle", 5)

	v.SetDefault("auth.required", true)
	// no usable default: bearer tokens stay disabled until a secret is set
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.api_key_hash", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.issuer", "recipelens")

	v.SetDefault("upload.max_bytes", 5<<20)
	v.SetDefault("upload.max_pixels", 40_000_000)
	v.SetDefault("upload.allowed_exts", "png,jpg,jpeg,gif,webp")

	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.workers", 0)
	v.SetDefault("ocr.engine_timeout", "20s")
	v.SetDefault("ocr.merge_threshold", 0.25)
	v.SetDefault("ocr.tesseract", true)
	v.SetDefault("ocr.neural.provider", "none")
	v.SetDefault("ocr.neural.api_key", "")
	v.SetDefault("ocr.neural.model", "gemini-1.5-flash")
	v.SetDefault("ocr.neural.base_url", "https://api.openai.com/v1")

	v.SetDefault("ingredient.catalog_path", "")

	v.SetDefault("match.process_image_limit", 10)
	v.SetDefault("match.find_limit", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("watch.dir", "inbox")
	v.SetDefault("watch.processed_dir", "")
	v.SetDefault("watch.workers", 0)
	v.SetDefault("watch.debounce", "2s")
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive, got %d", c.Upload.MaxBytes)
	}
	if c.Upload.MaxPixels < 0 {
		return fmt.Errorf("upload.max_pixels must not be negative, got %d", c.Upload.MaxPixels)
	}
	if c.OCR.MergeThreshold < 0 || c.OCR.MergeThreshold > 1 {
		return fmt.Errorf("ocr.merge_threshold must be within [0,1], got %v", c.OCR.MergeThreshold)
	}
	if c.OCR.EngineTimeout <= 0 {
		return fmt.Errorf("ocr.engine_timeout must be positive")
	}
	switch strings.ToLower(c.OCR.Neural.Provider) {
	case "", "none", "gemini", "openai":
	default:
		return fmt.Errorf("ocr.neural.provider %q not supported", c.OCR.Neural.Provider)
	}
	if c.Auth.Required && c.Auth.JWTSecret == "" && c.Auth.APIKey == "" && c.Auth.APIKeyHash == "" {
		return fmt.Errorf("auth.required is set but no jwt secret or api key is configured")
	}
	return nil
}

// splitList flattens comma separated entries coming from a single env var.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			p = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), ".")))
			if p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
