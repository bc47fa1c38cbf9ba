package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"PORT", "OCR_ENGINE", "OPENROUTER_API_KEY", "OPENROUTER_URL", "OCR_MODEL",
	"GEMINI_API_KEY", "GEMINI_MODEL", "OCR_PROMPT", "ACCESS_KEY", "AUTH_DISABLED",
	"MAX_IMAGE_KB", "MAX_IMAGE_PIXELS", "REQUEST_TIMEOUT", "DECODE_FALLBACK", "MAX_UPLOAD_MB",
	"NORMALIZE_CONCURRENCY", "CORS_ALLOWED_ORIGINS", "LOG_LEVEL", "LOG_FORMAT",
	"DATABASE_URL", "TELEGRAM_BOT_TOKEN", "WEBHOOK_URL", "TELEGRAM_ALLOWED_CHATS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("ACCESS_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, EngineGPT, cfg.Engine)
	assert.Equal(t, DefaultUpstreamURL, cfg.UpstreamURL)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultMaxImageKB, cfg.MaxImageKB)
	assert.Equal(t, int64(DefaultMaxPixels), cfg.MaxImagePixels)
	assert.Equal(t, DefaultTimeout, cfg.RequestTimeout)
	assert.Equal(t, FallbackFail, cfg.DecodeFallback)
	assert.Equal(t, int64(20<<20), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.AuthDisabled)
	assert.Positive(t, cfg.NormalizeSlots)
}

func TestLoadMissingSecrets(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
	assert.Contains(t, err.Error(), "ACCESS_KEY")
}

func TestLoadAuthDisabled(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("AUTH_DISABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AuthDisabled)
	assert.Empty(t, cfg.AccessKey)
}

func TestLoadGeminiRequiresItsKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("OCR_ENGINE", "Gemini")
	t.Setenv("ACCESS_KEY", "secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.NotContains(t, err.Error(), "OPENROUTER_API_KEY")
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("ACCESS_KEY", "secret")
	t.Setenv("OCR_ENGINE", "tesseract")
	t.Setenv("DECODE_FALLBACK", "ignore")
	t.Setenv("MAX_IMAGE_KB", "-5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OCR_ENGINE")
	assert.Contains(t, err.Error(), "DECODE_FALLBACK")
	assert.Contains(t, err.Error(), "MAX_IMAGE_KB")
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("ACCESS_KEY", "secret")
	t.Setenv("REQUEST_TIMEOUT", "15")
	t.Setenv("MAX_IMAGE_KB", "256")
	t.Setenv("MAX_IMAGE_PIXELS", "4000000")
	t.Setenv("DECODE_FALLBACK", "PASSTHROUGH")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("TELEGRAM_ALLOWED_CHATS", "42, -100123, nope")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 256, cfg.MaxImageKB)
	assert.Equal(t, int64(4_000_000), cfg.MaxImagePixels)
	assert.Equal(t, FallbackPassthrough, cfg.DecodeFallback)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, []int64{42, -100123}, cfg.TelegramAllowedChats)
}

func TestLoadBotRequiresToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-test")

	_, err := LoadBot()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
	assert.NotContains(t, err.Error(), "ACCESS_KEY")

	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	cfg, err := LoadBot()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.TelegramBotToken)
}
