// Package wire maps chat events to the JSON frames browsers exchange with
// the server, and decodes what they send back.
package wire

import (
	"encoding/json"
	"fmt"

	"stataggg-chat/domain/chat"
	"stataggg-chat/domain/event"
	"stataggg-chat/errors"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Clock format of created_at, local to the server.
const TimeLayout = "15:04"

var validate = validator.New()

// Inbound is a client frame. Unknown fields are ignored.
type Inbound struct {
	Type      string `json:"type" validate:"required,oneof=send delete edit"`
	Content   string `json:"content" validate:"required_if=Type send,required_if=Type edit"`
	ReplyToID *int64 `json:"reply_to_id" validate:"omitempty,min=0"`
	MsgID     int64  `json:"msg_id" validate:"required_if=Type delete,required_if=Type edit,min=0"`
}

// Decode parses and validates one frame. Any failure wraps ErrInvalidFrame.
func Decode(data []byte) (chat.Command, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFrame, err)
	}
	switch in.Type {
	case "send":
		// Ids start at 1, so 0 is what clients send for "no reply".
		replyTo := in.ReplyToID
		if replyTo != nil && *replyTo == 0 {
			replyTo = nil
		}
		return chat.SendCommand{Content: in.Content, ReplyToID: replyTo}, nil
	case "delete":
		return chat.DeleteCommand{MessageID: in.MsgID}, nil
	default:
		return chat.EditCommand{MessageID: in.MsgID, Content: in.Content}, nil
	}
}

type NewMessageFrame struct {
	Type      string `json:"type"`
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"is_admin"`
	IsPremium bool   `json:"is_premium"`
	PhotoURL  string `json:"photo_url"`
	CreatedAt string `json:"created_at"`
	ReplyTo   *int64 `json:"reply_to"`
}

type DeleteFrame struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

type EditFrame struct {
	Type     string `json:"type"`
	ID       int64  `json:"id"`
	Content  string `json:"content"`
	IsEdited bool   `json:"is_edited"`
}

type OnlineUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
	IsAdmin   bool   `json:"is_admin"`
	IsPremium bool   `json:"is_premium"`
}

type OnlineListFrame struct {
	Type  string       `json:"type"`
	Users []OnlineUser `json:"users"`
}

// HistoryItem is one message of the backlog, as served by both the
// history frame and GET /api/chat/history.
type HistoryItem struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"is_admin"`
	IsPremium bool   `json:"is_premium"`
	PhotoURL  string `json:"photo_url"`
	CreatedAt string `json:"created_at"`
	Timestamp int64  `json:"timestamp"`
	ReplyTo   *int64 `json:"reply_to"`
	IsEdited  bool   `json:"is_edited"`
}

type HistoryFrame struct {
	Type     string        `json:"type"`
	Messages []HistoryItem `json:"messages"`
}

type ErrorFrame struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Encode returns the frame for e, ready for json.Marshal.
func Encode(e event.DomainEvent) (any, error) {
	switch ev := e.(type) {
	case event.NewMessage:
		m := ev.Message
		return NewMessageFrame{
			Type:      ev.Type(),
			ID:        m.ID,
			Content:   m.Content,
			Username:  m.Author.DisplayName,
			IsAdmin:   m.Author.IsAdmin,
			IsPremium: m.Author.IsPremium,
			PhotoURL:  m.Author.AvatarURL,
			CreatedAt: m.CreatedAt.Local().Format(TimeLayout),
			ReplyTo:   m.ReplyToID,
		}, nil
	case event.MessageDeleted:
		return DeleteFrame{Type: ev.Type(), ID: ev.MessageID}, nil
	case event.MessageEdited:
		return EditFrame{Type: ev.Type(), ID: ev.Message.ID, Content: ev.Message.Content, IsEdited: true}, nil
	case event.OnlineList:
		return OnlineListFrame{
			Type: ev.Type(),
			Users: lo.Map(ev.Users, func(i chat.Identity, _ int) OnlineUser {
				return OnlineUser{
					ID:        i.UserKey,
					Username:  i.DisplayName,
					PhotoURL:  i.AvatarURL,
					IsAdmin:   i.IsAdmin,
					IsPremium: i.IsPremium,
				}
			}),
		}, nil
	case event.History:
		return HistoryFrame{Type: ev.Type(), Messages: HistoryItems(ev.Messages)}, nil
	case event.SoftError:
		return ErrorFrame{Type: ev.Type(), Reason: ev.Reason}, nil
	default:
		return nil, fmt.Errorf("no frame for event %q", e.Type())
	}
}

// HistoryItems never returns nil so the JSON is always an array.
func HistoryItems(messages []chat.Message) []HistoryItem {
	items := make([]HistoryItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, HistoryItem{
			ID:        m.ID,
			Content:   m.Content,
			Username:  m.Author.DisplayName,
			IsAdmin:   m.Author.IsAdmin,
			IsPremium: m.Author.IsPremium,
			PhotoURL:  m.Author.AvatarURL,
			CreatedAt: m.CreatedAt.Local().Format(TimeLayout),
			Timestamp: m.CreatedAt.Unix(),
			ReplyTo:   m.ReplyToID,
			IsEdited:  m.Edited,
		})
	}
	return items
}
