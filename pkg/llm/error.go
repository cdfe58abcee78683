// Package llm holds the chat types shared by the relay, the composer and the
// upstream providers, plus the Streamer capability every provider implements.
package llm

// ErrorResponse is the JSON body written on non-streaming failures.
type ErrorResponse struct {
	Error string `json:"error"`
}
