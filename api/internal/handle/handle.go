package handle

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"ocr-relay/api/internal/ocr"
	"ocr-relay/api/internal/relay"
)

const (
	ServiceName = "ocr-relay"
	Version     = "1.0.0"
)

// Extractor runs one upload through the pipeline.
type Extractor interface {
	Process(ctx context.Context, up relay.Upload) (ocr.Result, error)
}

type Handle struct {
	svc       Extractor
	maxUpload int64
	log       *zap.Logger
}

// New returns the HTTP handlers. maxUpload caps the request body in bytes;
// values <= 0 disable the cap.
func New(svc Extractor, maxUpload int64, log *zap.Logger) *Handle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handle{
		svc:       svc,
		maxUpload: maxUpload,
		log:       log,
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Detail: msg})
}
