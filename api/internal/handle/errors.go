package handle

import (
	"errors"
	"net/http"

	"ocr-relay/api/internal/normalizer"
	"ocr-relay/api/internal/ocr"
	"ocr-relay/api/internal/relay"
)

var ErrUnauthorized = errors.New("API key inválida o ausente")

// ValidationError rejects a request before the pipeline runs.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

// statusFor maps an error to the HTTP status and the detail message sent to
// the client.
func statusFor(err error) (int, string) {
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Msg
	case errors.Is(err, relay.ErrEmptyImage):
		return http.StatusBadRequest, "la imagen está vacía"
	case errors.Is(err, normalizer.ErrDecode):
		return http.StatusInternalServerError, "Error procesando OCR: " + err.Error()
	case ocr.IsUpstream(err):
		return http.StatusInternalServerError, "Error de conexión con el proveedor OCR: " + err.Error()
	case ocr.IsUnexpectedResponse(err):
		return http.StatusInternalServerError, "Respuesta inesperada del proveedor OCR: " + err.Error()
	default:
		return http.StatusInternalServerError, "Error procesando OCR: " + err.Error()
	}
}
