package llm

// ChatRequest is the Ollama-compatible /api/chat request body.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   *bool     `json:"stream,omitempty"` // Ollama defaults to streaming when unset

	Options *Options `json:"options,omitempty"`
}
