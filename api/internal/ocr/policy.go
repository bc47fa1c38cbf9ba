package ocr

// DefaultPrompt asks the model for the raw text only.
const DefaultPrompt = "Extrae todo el texto visible en esta imagen. Devuelve únicamente el texto sin ningún comentario adicional."

// ImageMIME is the media type of every normalized image sent upstream.
const ImageMIME = "image/jpeg"

// PromptOrDefault returns p unless it is empty.
func PromptOrDefault(p string) string {
	if p == "" {
		return DefaultPrompt
	}
	return p
}
