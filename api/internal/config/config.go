package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultUpstreamURL = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel       = "openai/gpt-4-vision-preview"
	DefaultMaxImageKB  = 1024
	DefaultMaxPixels   = 89_478_485
	DefaultTimeout     = 60 * time.Second

	EngineGPT    = "gpt"
	EngineGemini = "gemini"

	FallbackFail        = "fail"
	FallbackPassthrough = "passthrough"
)

type Config struct {
	Port string

	Engine       string
	UpstreamKey  string
	UpstreamURL  string
	Model        string
	GeminiAPIKey string
	GeminiModel  string
	Prompt       string

	AccessKey    string
	AuthDisabled bool

	MaxImageKB     int
	MaxImagePixels int64
	RequestTimeout time.Duration
	DecodeFallback string
	MaxUploadBytes int64
	NormalizeSlots int

	CORSAllowedOrigins []string
	LogLevel           string
	LogFormat          string

	DatabaseURL string

	TelegramBotToken     string
	WebhookURL           string
	TelegramAllowedChats []int64
}

// Load reads the HTTP service configuration from the environment and
// validates it. Every missing required key is reported at once.
func Load() (*Config, error) {
	cfg := load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBot is Load plus the Telegram settings the bot binary needs. The
// access key is not required there: the chat allow-list takes its role.
func LoadBot() (*Config, error) {
	cfg := load()
	cfg.AuthDisabled = true
	errs := []error{cfg.Validate()}
	if cfg.TelegramBotToken == "" {
		errs = append(errs, missing("TELEGRAM_BOT_TOKEN"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() *Config {
	return &Config{
		Port: getEnv("PORT", "8000"),

		Engine:       strings.ToLower(getEnv("OCR_ENGINE", EngineGPT)),
		UpstreamKey:  getEnv("OPENROUTER_API_KEY", ""),
		UpstreamURL:  getEnv("OPENROUTER_URL", DefaultUpstreamURL),
		Model:        getEnv("OCR_MODEL", DefaultModel),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		Prompt:       getEnv("OCR_PROMPT", ""),

		AccessKey:    getEnv("ACCESS_KEY", ""),
		AuthDisabled: getEnvAsBool("AUTH_DISABLED", false),

		MaxImageKB:     getEnvAsInt("MAX_IMAGE_KB", DefaultMaxImageKB),
		MaxImagePixels: int64(getEnvAsInt("MAX_IMAGE_PIXELS", DefaultMaxPixels)),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", DefaultTimeout),
		DecodeFallback: strings.ToLower(getEnv("DECODE_FALLBACK", FallbackFail)),
		MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 20)) << 20,
		NormalizeSlots: getEnvAsInt("NORMALIZE_CONCURRENCY", runtime.NumCPU()),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		TelegramBotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:           getEnv("WEBHOOK_URL", ""),
		TelegramAllowedChats: parseChatIDs(getEnv("TELEGRAM_ALLOWED_CHATS", "")),
	}
}

// Validate checks secrets and enumerations. Secrets have no defaults.
func (c *Config) Validate() error {
	var errs []error
	switch c.Engine {
	case EngineGPT:
		if c.UpstreamKey == "" {
			errs = append(errs, missing("OPENROUTER_API_KEY"))
		}
	case EngineGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, missing("GEMINI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("OCR_ENGINE %q is not supported; use %q or %q", c.Engine, EngineGPT, EngineGemini))
	}
	if !c.AuthDisabled && c.AccessKey == "" {
		errs = append(errs, missing("ACCESS_KEY"))
	}
	switch c.DecodeFallback {
	case FallbackFail, FallbackPassthrough:
	default:
		errs = append(errs, fmt.Errorf("DECODE_FALLBACK %q is not supported; use %q or %q", c.DecodeFallback, FallbackFail, FallbackPassthrough))
	}
	if c.MaxImageKB <= 0 {
		errs = append(errs, fmt.Errorf("MAX_IMAGE_KB must be > 0, got %d", c.MaxImageKB))
	}
	if c.MaxImagePixels <= 0 {
		errs = append(errs, fmt.Errorf("MAX_IMAGE_PIXELS must be > 0, got %d", c.MaxImagePixels))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be > 0, got %s", c.RequestTimeout))
	}
	if c.NormalizeSlots <= 0 {
		c.NormalizeSlots = 1
	}
	return errors.Join(errs...)
}

func missing(key string) error {
	return fmt.Errorf("missing required env %s", key)
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := getEnv(key, ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseChatIDs(s string) []int64 {
	var out []int64
	for _, p := range splitList(s) {
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
