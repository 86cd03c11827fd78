// Package event defines what the chat room pushes to connected clients.
package event

import (
	"stataggg-chat/domain/chat"
)

// DomainEvent is anything the broadcast hub can fan out.
type DomainEvent interface {
	Type() string
}

// NewMessage announces a freshly persisted message.
type NewMessage struct {
	Message chat.Message
}

func (NewMessage) Type() string { return "new_message" }

// MessageDeleted is sent whether or not the message still existed.
type MessageDeleted struct {
	MessageID int64
}

func (MessageDeleted) Type() string { return "delete" }

type MessageEdited struct {
	Message chat.Message
}

func (MessageEdited) Type() string { return "edit" }

// OnlineList carries the deduplicated presence set.
type OnlineList struct {
	Users []chat.Identity
}

func (OnlineList) Type() string { return "online_list" }

// History primes a single client with the recent log, oldest first.
type History struct {
	Messages []chat.Message
}

func (History) Type() string { return "history" }

// SoftError reports a failed write to the connection that issued it.
type SoftError struct {
	Reason string
}

func (SoftError) Type() string { return "error" }
