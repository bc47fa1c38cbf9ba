package handle

import (
	"net/http"
	"time"

	"ocr-relay/api/internal/ocr"
)

type rootResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

func (h *Handle) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Service: ServiceName,
		Version: Version,
		Endpoints: map[string]string{
			"GET /health": "estado del servicio",
			"POST /ocr":   "extrae el texto de una imagen (campo multipart 'file')",
		},
	})
}

func (h *Handle) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": ocr.Now().UTC().Format(time.RFC3339),
	})
}
