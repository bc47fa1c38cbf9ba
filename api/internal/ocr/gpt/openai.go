package gpt

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ocr-relay/api/internal/ocr"
)

type Engine struct {
	APIKey   string
	Model    string
	Endpoint string
	Prompt   string

	httpc *http.Client
	log   *zap.Logger
}

// New builds a chat-completions engine. timeout bounds the whole exchange.
func New(key, endpoint, model, prompt string, timeout time.Duration, log *zap.Logger) *Engine {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second, // TCP connect
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		APIKey:   strings.TrimSpace(key),
		Model:    strings.TrimSpace(model),
		Endpoint: strings.TrimSpace(endpoint),
		Prompt:   ocr.PromptOrDefault(prompt),
		httpc: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
		log: log,
	}
}

func (e *Engine) Name() string     { return "gpt" }
func (e *Engine) GetModel() string { return e.Model }
