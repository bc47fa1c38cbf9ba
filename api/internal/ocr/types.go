package ocr

import "time"

// UnknownModel is reported when the upstream does not name its model.
const UnknownModel = "unknown"

// Result is the outcome of one extraction.
type Result struct {
	Text      string `json:"texto"`
	Model     string `json:"modelo"`
	Timestamp string `json:"timestamp"`
}

// NewResult stamps the result with the current time.
func NewResult(text, model string) Result {
	if model == "" {
		model = UnknownModel
	}
	return Result{
		Text:      text,
		Model:     model,
		Timestamp: Now().UTC().Format(time.RFC3339),
	}
}

// Now is replaced in tests.
var Now = time.Now
