package types

import (
	"time"
	"unicode/utf8"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// SourceRef is a citation attached to an assistant message.
type SourceRef struct {
	Path  string  `json:"path"`
	Score float64 `json:"score,omitempty"`
}

// Message is a single chat message. Append-only once persisted.
type Message struct {
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Sources   []SourceRef `json:"sources,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewUserMessage builds a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage builds an assistant message with its cited sources.
func NewAssistantMessage(content string, sources []SourceRef) Message {
	return Message{Role: RoleAssistant, Content: content, Sources: sources, Timestamp: time.Now().UTC()}
}

// maxTitleLen bounds auto-generated session titles.
const maxTitleLen = 50

// ChatSession is one conversation thread scoped to a single codebase.
type ChatSession struct {
	ID         string
	CodebaseID string
	Title      string
	Messages   []Message
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AddMessage appends a message and maintains the updated timestamp. The first
// user message seeds the session title.
func (s *ChatSession) AddMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now().UTC()
	if s.Title == "" && msg.Role == RoleUser {
		s.Title = TitleFromContent(msg.Content)
	}
}

// TitleFromContent derives a short session title from message content.
// Truncation lands on a rune boundary so the title stays valid UTF-8.
func TitleFromContent(content string) string {
	if len(content) <= maxTitleLen {
		return content
	}
	cut := maxTitleLen
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

// MessageCount returns the number of messages in the session.
func (s *ChatSession) MessageCount() int { return len(s.Messages) }

// SessionSummary is the listing shape for sessions: metadata without the
// message bodies.
type SessionSummary struct {
	ID           string    `json:"session_id"`
	CodebaseID   string    `json:"codebase_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
