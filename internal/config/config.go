package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Log        LogConfig       `yaml:"log"`
	Providers  ProvidersConfig `yaml:"providers"`
	Routing    Routing         `yaml:"routing"`
	Extract    ExtractConfig   `yaml:"extract"`
	StagingDir string          `yaml:"staging_dir"`
	Store      StoreConfig     `yaml:"store"`
	Blob       BlobConfig      `yaml:"blob"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port         int      `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProvidersConfig catalogues the three upstream families.
type ProvidersConfig struct {
	Gemini     ProviderConfig `yaml:"gemini"`
	OpenRouter ProviderConfig `yaml:"openrouter"`
	Groq       ProviderConfig `yaml:"groq"`
}

// ProviderConfig captures authentication and endpoint info for a provider.
type ProviderConfig struct {
	APIKey  string            `yaml:"api_key"`
	BaseURL string            `yaml:"base_url"`
	Headers Headers           `yaml:"headers"`
	Aliases map[string]string `yaml:"aliases"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// Routing holds the static model classification tables. It is read once at
// startup and never modified afterwards.
type Routing struct {
	DefaultModel           string   `yaml:"default_model"`
	GeminiPrefix           string   `yaml:"gemini_prefix"`
	GeminiModels           []string `yaml:"gemini_models"`
	NativeAttachmentModels []string `yaml:"native_attachment_models"`
	GroqModels             []string `yaml:"groq_models"`
	GroqPrefixes           []string `yaml:"groq_prefixes"`
}

// ExtractConfig configures the text extraction collaborator.
type ExtractConfig struct {
	OCREndpoint string `yaml:"ocr_endpoint"`
	OCRAPIKey   string `yaml:"ocr_api_key"`
	MaxBytes    int64  `yaml:"max_bytes"`
}

// StoreConfig selects and configures the file-metadata store.
type StoreConfig struct {
	Driver string      `yaml:"driver"`
	Redis  RedisConfig `yaml:"redis"`
	SQLite string      `yaml:"sqlite_path"`
}

// RedisConfig holds go-redis connection options.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BlobConfig holds Cloudinary credentials.
type BlobConfig struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// Enabled reports whether blob deletion is configured.
func (b BlobConfig) Enabled() bool {
	return b.CloudName != "" && b.APIKey != "" && b.APISecret != ""
}

// Default returns a configuration populated with the built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8000,
			AllowOrigins: []string{"*"},
			MaxBodyBytes: 1 << 20,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Providers: ProvidersConfig{
			Gemini:     ProviderConfig{BaseURL: "https://generativelanguage.googleapis.com"},
			OpenRouter: ProviderConfig{BaseURL: "https://openrouter.ai/api/v1"},
			Groq: ProviderConfig{
				BaseURL: "https://api.groq.com/openai/v1",
				Aliases: map[string]string{"groq": "qwen/qwen3-32b"},
			},
		},
		Routing: DefaultRouting(),
		Extract: ExtractConfig{
			OCREndpoint: "https://api.ocr.space/parse/image",
			MaxBytes:    32 << 20,
		},
		StagingDir: os.TempDir(),
		Store: StoreConfig{
			Driver: StoreSQLite,
			Redis:  RedisConfig{Addr: "localhost:6379"},
			SQLite: "promptpilot.db",
		},
	}
}

// DefaultRouting returns the built-in classification tables.
func DefaultRouting() Routing {
	return Routing{
		DefaultModel: "gemini-1.5-flash",
		GeminiPrefix: "gemini",
		GeminiModels: []string{
			"gemini-2.5-pro",
			"gemini-2.5-flash",
			"gemini-2.5-flash-lite-preview-06-17",
			"gemini-2.0-flash",
			"gemini-2.0-flash-lite",
			"gemini-1.5-flash",
			"gemini-1.5-pro",
		},
		NativeAttachmentModels: []string{"gemini-2.5-pro", "gemini-2.5-flash"},
		GroqModels:             []string{"groq", "qwen/qwen3-32b"},
		GroqPrefixes:           []string{"llama", "mixtral", "gemma"},
	}
}

// Load reads YAML configuration from disk, applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := map[string]*string{
		"GEMINI_API_KEY":        &c.Providers.Gemini.APIKey,
		"OPENROUTER_API_KEY":    &c.Providers.OpenRouter.APIKey,
		"GROQ_API_KEY":          &c.Providers.Groq.APIKey,
		"OCR_API_KEY":           &c.Extract.OCRAPIKey,
		"CLOUDINARY_CLOUD_NAME": &c.Blob.CloudName,
		"CLOUDINARY_API_KEY":    &c.Blob.APIKey,
		"CLOUDINARY_API_SECRET": &c.Blob.APISecret,
		"REDIS_ADDR":            &c.Store.Redis.Addr,
		"REDIS_PASSWORD":        &c.Store.Redis.Password,
	}
	for key, target := range overrides {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	key := strings.TrimSpace(c.Providers.Gemini.APIKey)
	if key == "" || key == "YOUR_GEMINI_API_KEY" {
		return fmt.Errorf("providers.gemini.api_key must be provided (or set GEMINI_API_KEY)")
	}

	providers := map[string]ProviderConfig{
		"gemini":     c.Providers.Gemini,
		"openrouter": c.Providers.OpenRouter,
		"groq":       c.Providers.Groq,
	}
	for name, provider := range providers {
		if err := validateProvider(name, provider); err != nil {
			return err
		}
	}

	if strings.TrimSpace(c.Routing.DefaultModel) == "" {
		return fmt.Errorf("routing.default_model must not be empty")
	}
	if strings.TrimSpace(c.Routing.GeminiPrefix) == "" {
		return fmt.Errorf("routing.gemini_prefix must not be empty")
	}

	switch c.Store.Driver {
	case StoreRedis:
		if strings.TrimSpace(c.Store.Redis.Addr) == "" {
			return fmt.Errorf("store.redis.addr must be provided for the redis driver")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.Store.SQLite) == "" {
			return fmt.Errorf("store.sqlite_path must be provided for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver %q must be one of %q or %q", c.Store.Driver, StoreRedis, StoreSQLite)
	}

	if c.Extract.MaxBytes <= 0 {
		return fmt.Errorf("extract.max_bytes must be positive")
	}

	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	if strings.TrimSpace(provider.BaseURL) == "" {
		return fmt.Errorf("provider %s: base_url must be provided", name)
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}

	for alias, target := range provider.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("provider %s: alias name must not be empty", name)
		}
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("provider %s: alias %q target must not be empty", name, alias)
		}
	}

	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
