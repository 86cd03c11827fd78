// Package chat contains the core concepts of the chat room.
// No runtime, network, or storage logic should be added here.
package chat

import (
	"strings"
	"time"
)

const (
	// MaxContentLength is the maximum number of characters kept from any message body.
	MaxContentLength = 1000
	// HistoryLimit is the number of messages replayed to a freshly connected client.
	HistoryLimit = 100
)

// Message is a persisted chat message.
// ID and CreatedAt are assigned by the store, never by the caller.
type Message struct {
	ID        int64
	Author    Identity // snapshot taken when the author connected
	Content   string
	ReplyToID *int64 // loose pointer, may reference a deleted message
	CreatedAt time.Time
	Edited    bool
}

// AuthorID returns the opaque key of the message author.
func (m Message) AuthorID() string {
	return m.Author.UserKey
}

// IsReply reports whether the message points to another one.
func (m Message) IsReply() bool {
	return m.ReplyToID != nil
}

// NormalizeContent trims the raw input and keeps at most MaxContentLength characters.
// The second return value is false when nothing is left to store.
func NormalizeContent(raw string) (string, bool) {
	content := strings.TrimSpace(raw)
	runes := []rune(content)
	if len(runes) > MaxContentLength {
		content = string(runes[:MaxContentLength])
	}
	return content, content != ""
}
