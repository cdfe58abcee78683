package llm

// Conversation is an ordered sequence of turns.
type Conversation []Message

// Clone returns a copy that shares no backing array with c.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// Last returns the final turn, or false when the conversation is empty.
func (c Conversation) Last() (Message, bool) {
	if len(c) == 0 {
		return Message{}, false
	}
	return c[len(c)-1], true
}

// WithoutSystem drops every system turn, keeping the order of the rest.
func (c Conversation) WithoutSystem() Conversation {
	out := make(Conversation, 0, len(c))
	for _, m := range c {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// WithSystemPrompt builds an upstream message list holding exactly one
// system turn, in first position, followed by the non-system turns of c.
func (c Conversation) WithSystemPrompt(prompt string) []Message {
	rest := c.WithoutSystem()
	out := make([]Message, 0, len(rest)+1)
	out = append(out, SystemMessage(prompt))
	return append(out, rest...)
}
