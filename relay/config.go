package relay

// Config is the relay server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// SystemPrompt is prepended as the only system turn of every upstream request.
	SystemPrompt string
}
