package gpt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ocr-relay/api/internal/ocr"
	"ocr-relay/api/internal/util"
)

const maxErrBody = 1024

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (e *Engine) buildRequest(image []byte) chatRequest {
	b64 := base64.StdEncoding.EncodeToString(image)
	return chatRequest{
		Model: e.Model,
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: e.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: util.MakeDataURL(ocr.ImageMIME, b64)}},
			},
		}},
	}
}

// Extract sends one chat-completions request carrying the image as a data
// URI and returns the trimmed content of the first choice.
func (e *Engine) Extract(ctx context.Context, image []byte) (ocr.Result, error) {
	start := time.Now()
	payload, err := json.Marshal(e.buildRequest(image))
	if err != nil {
		return ocr.Result{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return ocr.Result{}, &ocr.UpstreamError{Engine: e.Name(), Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		e.log.Warn("gpt.extract.http_error", zap.Error(err), zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return ocr.Result{}, &ocr.UpstreamError{Engine: e.Name(), Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ocr.Result{}, &ocr.UpstreamError{Engine: e.Name(), StatusCode: resp.StatusCode, Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := strings.TrimSpace(util.TruncateBytes(raw, maxErrBody))
		e.log.Warn("gpt.extract.bad_status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", body),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return ocr.Result{}, &ocr.UpstreamError{
			Engine:     e.Name(),
			StatusCode: resp.StatusCode,
			Body:       body,
			Cause:      fmt.Errorf("status %s", resp.Status),
		}
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return ocr.Result{}, &ocr.UnexpectedResponseError{
			Engine: e.Name(),
			Reason: "body is not valid JSON",
			Body:   util.TruncateBytes(raw, maxErrBody),
			Cause:  err,
		}
	}
	if len(cc.Choices) == 0 {
		return ocr.Result{}, &ocr.UnexpectedResponseError{
			Engine: e.Name(),
			Reason: "no choices in response",
			Body:   util.TruncateBytes(raw, maxErrBody),
		}
	}

	first := cc.Choices[0].Message
	if first == nil || first.Content == nil {
		return ocr.Result{}, &ocr.UnexpectedResponseError{
			Engine: e.Name(),
			Reason: "first choice has no message content",
			Body:   util.TruncateBytes(raw, maxErrBody),
		}
	}

	out := ocr.NewResult(strings.TrimSpace(*first.Content), cc.Model)
	e.log.Debug("gpt.extract.ok",
		zap.String("model", out.Model),
		zap.Int("text_len", len(out.Text)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return out, nil
}
