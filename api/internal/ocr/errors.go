package ocr

import (
	"errors"
	"fmt"
)

// UpstreamError covers transport failures, timeouts and non-2xx replies.
type UpstreamError struct {
	Engine     string
	StatusCode int // 0 when no response was received
	Body       string
	Cause      error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream %d: %s", e.Engine, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s upstream: %v", e.Engine, e.Cause)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// UnexpectedResponseError is returned when the upstream reply has no usable
// content, e.g. an empty choices list or malformed JSON.
type UnexpectedResponseError struct {
	Engine string
	Reason string
	Body   string
	Cause  error
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("%s unexpected response: %s", e.Engine, e.Reason)
}

func (e *UnexpectedResponseError) Unwrap() error { return e.Cause }

func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

func IsUnexpectedResponse(err error) bool {
	var ue *UnexpectedResponseError
	return errors.As(err, &ue)
}
