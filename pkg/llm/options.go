package llm

// Options contains model inference parameters sent to Ollama-compatible upstreams.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"` // Max tokens to generate
}

// NewOptions returns the options for a sampling temperature and reply token
// cap, where zero keeps the model default for either. It returns nil when
// both are zero.
func NewOptions(temperature float32, maxTokens int) *Options {
	if temperature == 0 && maxTokens <= 0 {
		return nil
	}
	opts := &Options{}
	if temperature != 0 {
		t := float64(temperature)
		opts.Temperature = &t
	}
	if maxTokens > 0 {
		opts.NumPredict = &maxTokens
	}
	return opts
}
