package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"ocr-relay/api/internal/ocr"
)

type generateFunc func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)

type Engine struct {
	APIKey  string
	Model   string
	Prompt  string
	Timeout time.Duration

	generate generateFunc
	log      *zap.Logger
}

func New(apiKey, model, prompt string, timeout time.Duration, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		APIKey:  strings.TrimSpace(apiKey),
		Model:   strings.TrimSpace(model),
		Prompt:  ocr.PromptOrDefault(prompt),
		Timeout: timeout,
		log:     log,
	}
	e.generate = e.generateWithClient
	return e
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) generateWithClient(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return nil, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}
	return m.GenerateContent(ctx, parts...)
}

// Extract sends the prompt and the image as an inline blob. One call, no
// retries.
func (e *Engine) Extract(ctx context.Context, image []byte) (ocr.Result, error) {
	if e.APIKey == "" {
		return ocr.Result{}, &ocr.UpstreamError{Engine: e.Name(), Cause: errors.New("GEMINI_API_KEY is empty")}
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	start := time.Now()
	parts := []genai.Part{
		genai.Text(e.Prompt),
		genai.ImageData("jpeg", image),
	}
	resp, err := e.generate(ctx, parts...)
	if err != nil {
		e.log.Warn("gemini.extract.error", zap.Error(err), zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return ocr.Result{}, &ocr.UpstreamError{Engine: e.Name(), Cause: err}
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return ocr.Result{}, &ocr.UnexpectedResponseError{Engine: e.Name(), Reason: "no candidates in response"}
	}
	txt, ok := firstText(resp)
	if !ok {
		return ocr.Result{}, &ocr.UnexpectedResponseError{Engine: e.Name(), Reason: "first candidate has no text part"}
	}
	return ocr.NewResult(strings.TrimSpace(txt), e.Model), nil
}

func firstText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t), true
			}
		}
	}
	return "", false
}

func ptrFloat32(v float32) *float32 { return &v }
