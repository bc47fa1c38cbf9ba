package handle

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"ocr-relay/api/internal/relay"
	"ocr-relay/api/internal/util"
)

const (
	formField = "file"
	// memory kept by ParseMultipartForm before spilling parts to disk
	formMemory = 8 << 20
)

// OCR accepts a multipart upload in the "file" field and returns the
// extracted text.
func (h *Handle) OCR(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFrom(r.Context())
	up, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, r, err, zap.String("filename", up.Filename), zap.String("content_type", up.ContentType))
		return
	}
	up.RequestID = reqID
	up.Source = relay.SourceHTTP

	res, err := h.svc.Process(r.Context(), up)
	if err != nil {
		h.fail(w, r, err, zap.String("filename", up.Filename), zap.String("content_type", up.ContentType))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handle) readUpload(w http.ResponseWriter, r *http.Request) (relay.Upload, error) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return relay.Upload{}, invalid(fmt.Sprintf("el archivo supera el límite de %d MB", mbe.Limit>>20))
		}
		return relay.Upload{}, invalid("se esperaba un formulario multipart con el campo 'file'")
	}
	f, hdr, err := r.FormFile(formField)
	if err != nil {
		return relay.Upload{}, invalid("falta el archivo 'file'")
	}
	defer f.Close()

	up := relay.Upload{Filename: hdr.Filename, ContentType: hdr.Header.Get("Content-Type")}
	if !util.IsImageMIME(up.ContentType) {
		return up, invalid("el archivo debe ser una imagen")
	}
	up.Data, err = io.ReadAll(f)
	if err != nil {
		return up, fmt.Errorf("read upload: %w", err)
	}
	return up, nil
}

func (h *Handle) fail(w http.ResponseWriter, r *http.Request, err error, fields ...zap.Field) {
	code, msg := statusFor(err)
	fields = append(fields,
		zap.String("request_id", RequestIDFrom(r.Context())),
		zap.Int("status", code),
		zap.Error(err))
	if code >= http.StatusInternalServerError {
		h.log.Error("http.ocr.failed", fields...)
	} else {
		h.log.Warn("http.ocr.rejected", fields...)
	}
	writeError(w, code, msg)
}
