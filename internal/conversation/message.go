// Package conversation defines the message types shared by the history
// store, the provider adapters, and the web handlers.
//
// A conversation is an append-only sequence of timestamped messages owned
// by a single user ID. Persistence may grow without bound; only the window
// handed to a model call is trimmed, via Trim.
package conversation

import "time"

// Role constants for message roles.
const (
	// RoleUser marks a message written by the user.
	RoleUser = "user"
	// RoleAssistant marks a message produced by the assistant. Provider
	// adapters translate this to their own role naming where required.
	RoleAssistant = "assistant"
)

const (
	// MaxContextMessages is the maximum number of history messages included
	// in a model call. Persisted history may exceed this; the window is
	// applied at read time, not at write time.
	MaxContextMessages = 50

	// MaxMessageChars is the maximum length of a user message in characters.
	// Longer messages are truncated before classification and generation.
	MaxMessageChars = 8000
)

// Message is a single entry in a conversation.
// Assistant content may embed HTML markup for image results and formatted
// error replies; the field is stored and returned verbatim.
type Message struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// TS is the creation time in epoch milliseconds.
	TS int64 `json:"ts"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(role, content string) Message {
	return Message{
		Role:    role,
		Content: content,
		TS:      time.Now().UnixMilli(),
	}
}

// Trim returns the most recent MaxContextMessages messages.
// The returned slice aliases the input; callers must not mutate it.
func Trim(messages []Message) []Message {
	if len(messages) <= MaxContextMessages {
		return messages
	}
	return messages[len(messages)-MaxContextMessages:]
}

// Sanitize truncates a message to MaxMessageChars characters.
// Truncation happens on rune boundaries so multi-byte characters are
// never split.
func Sanitize(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxMessageChars {
		return text
	}
	return string(runes[:MaxMessageChars])
}
