package ocr

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct{ name string }

func (s stubEngine) Name() string     { return s.name }
func (s stubEngine) GetModel() string { return "m" }
func (s stubEngine) Extract(context.Context, []byte) (Result, error) {
	return NewResult("x", "m"), nil
}

func TestEnginesGetEngine(t *testing.T) {
	engs := NewEngines(stubEngine{"gpt"}, stubEngine{"gemini"}, nil)

	e, err := engs.GetEngine("GPT")
	require.NoError(t, err)
	assert.Equal(t, "gpt", e.Name())

	e, err = engs.GetEngine("openai")
	require.NoError(t, err)
	assert.Equal(t, "gpt", e.Name())

	_, err = engs.GetEngine("yandex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini, gpt")
}

func TestNewResult(t *testing.T) {
	fixed := time.Date(2026, 10, 14, 9, 30, 0, 0, time.FixedZone("X", 3600))
	Now = func() time.Time { return fixed }
	t.Cleanup(func() { Now = time.Now })

	r := NewResult("Hola", "")
	assert.Equal(t, UnknownModel, r.Model)
	assert.Equal(t, "2026-10-14T08:30:00Z", r.Timestamp)

	r = NewResult("Hola", "m1")
	assert.Equal(t, "m1", r.Model)
}

func TestErrorClassification(t *testing.T) {
	up := fmt.Errorf("relay: %w", &UpstreamError{Engine: "gpt", StatusCode: 500, Body: "boom"})
	assert.True(t, IsUpstream(up))
	assert.False(t, IsUnexpectedResponse(up))
	assert.Contains(t, up.Error(), "gpt upstream 500: boom")

	cause := errors.New("dial tcp: connection refused")
	up = &UpstreamError{Engine: "gpt", Cause: cause}
	assert.ErrorIs(t, up, cause)
	assert.Contains(t, up.Error(), "connection refused")

	un := fmt.Errorf("relay: %w", &UnexpectedResponseError{Engine: "gpt", Reason: "empty choices"})
	assert.True(t, IsUnexpectedResponse(un))
	assert.False(t, IsUpstream(un))
}

func TestPromptOrDefault(t *testing.T) {
	assert.Equal(t, DefaultPrompt, PromptOrDefault(""))
	assert.Equal(t, "read it", PromptOrDefault("read it"))
}
