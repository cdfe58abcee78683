package llm

// Roles a Message may carry.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`    // "system", "user", "assistant"
	Content string `json:"content"` // The message content
}

// SystemMessage returns the instruction turn prepended to upstream requests.
func SystemMessage(prompt string) Message {
	return Message{Role: RoleSystem, Content: prompt}
}
