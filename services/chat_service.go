//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"

	"stataggg-chat/contract"
	"stataggg-chat/domain/chat"
	"stataggg-chat/domain/event"
	"stataggg-chat/errors"
	"stataggg-chat/moderation"
	"stataggg-chat/observability"
	"stataggg-chat/repositories"
)

// IChatService holds the rules of the room. Identities passed in are the
// connect-time snapshots; nil means anonymous.
type IChatService interface {
	Join(ctx context.Context, peer contract.Peer, identity *chat.Identity) error
	Leave(ctx context.Context, peer contract.Peer, identity *chat.Identity)
	PostMessage(ctx context.Context, author *chat.Identity, cmd chat.SendCommand) (chat.Message, error)
	DeleteMessage(ctx context.Context, actor *chat.Identity, cmd chat.DeleteCommand) error
	EditMessage(ctx context.Context, actor *chat.Identity, cmd chat.EditCommand) (chat.Message, error)
	History(ctx context.Context, limit int) ([]chat.Message, error)
}

type ChatService struct {
	store        repositories.IMessageRepository
	registry     contract.IRegistry
	hub          contract.IBroadcaster
	moderator    *moderation.Moderator
	metrics      *observability.Metrics
	log          *slog.Logger
	historyLimit int
}

func NewChatService(
	store repositories.IMessageRepository,
	registry contract.IRegistry,
	hub contract.IBroadcaster,
	moderator *moderation.Moderator,
	metrics *observability.Metrics,
	log *slog.Logger,
	historyLimit int,
) *ChatService {
	if historyLimit <= 0 {
		historyLimit = chat.HistoryLimit
	}
	return &ChatService{
		store:        store,
		registry:     registry,
		hub:          hub,
		moderator:    moderator,
		metrics:      metrics,
		log:          log,
		historyLimit: historyLimit,
	}
}

// Join primes the peer with recent history, then makes it visible to the room.
// History comes first so the client never renders a live message before the
// backlog it belongs after. Only a failure to reach the peer is returned.
func (s *ChatService) Join(ctx context.Context, peer contract.Peer, identity *chat.Identity) error {
	history, err := s.store.RecentHistory(ctx, s.historyLimit)
	if err != nil {
		s.metrics.StoreFailed("history")
		s.log.Error("Unable to load history for new peer", "peer_id", peer.ID(), "error", err)
		history = nil
	}
	if err = peer.Consume(ctx, event.History{Messages: history}); err != nil {
		return fmt.Errorf("priming peer %s: %w", peer.ID(), err)
	}

	s.registry.Register(peer, identity)
	if identity != nil {
		s.hub.AnnouncePresence(ctx)
	}
	return nil
}

// Leave is safe to call more than once per peer: presence is only
// re-announced by the call that actually removed it.
func (s *ChatService) Leave(ctx context.Context, peer contract.Peer, identity *chat.Identity) {
	if !s.registry.Unregister(peer) {
		return
	}
	if identity != nil {
		s.hub.AnnouncePresence(ctx)
	}
}

func (s *ChatService) PostMessage(ctx context.Context, author *chat.Identity, cmd chat.SendCommand) (chat.Message, error) {
	if author == nil {
		return chat.Message{}, errors.ErrAnonymous
	}
	content, ok := chat.NormalizeContent(cmd.Content)
	if !ok {
		return chat.Message{}, errors.ErrEmptyContent
	}
	content, censored := s.moderator.Censor(content)
	if len(censored) > 0 {
		s.log.Info("Censored outgoing message", "user_key", author.UserKey, "words", censored)
	}

	message, err := s.store.Append(ctx, chat.Message{
		Author:    *author,
		Content:   content,
		ReplyToID: cmd.ReplyToID,
	})
	if err != nil {
		s.metrics.StoreFailed("append")
		return chat.Message{}, fmt.Errorf("appending message from %s: %w", author.UserKey, err)
	}
	s.metrics.MessageAppended()

	s.hub.Broadcast(ctx, event.NewMessage{Message: message})
	return message, nil
}

// DeleteMessage broadcasts the deletion even when the id is already gone, so
// clients that still render it drop it.
func (s *ChatService) DeleteMessage(ctx context.Context, actor *chat.Identity, cmd chat.DeleteCommand) error {
	if actor == nil {
		return errors.ErrAnonymous
	}
	if !actor.CanModerate() {
		return errors.ErrForbidden
	}
	if err := s.store.Delete(ctx, cmd.MessageID); err != nil {
		s.metrics.StoreFailed("delete")
		return fmt.Errorf("deleting message %d: %w", cmd.MessageID, err)
	}
	s.metrics.MessageDeleted()
	s.log.Info("Message deleted", "msg_id", cmd.MessageID, "user_key", actor.UserKey)

	s.hub.Broadcast(ctx, event.MessageDeleted{MessageID: cmd.MessageID})
	return nil
}

func (s *ChatService) EditMessage(ctx context.Context, actor *chat.Identity, cmd chat.EditCommand) (chat.Message, error) {
	if actor == nil {
		return chat.Message{}, errors.ErrAnonymous
	}
	content, ok := chat.NormalizeContent(cmd.Content)
	if !ok {
		return chat.Message{}, errors.ErrEmptyContent
	}

	existing, found, err := s.store.Get(ctx, cmd.MessageID)
	if err != nil {
		s.metrics.StoreFailed("get")
		return chat.Message{}, fmt.Errorf("loading message %d: %w", cmd.MessageID, err)
	}
	if !found {
		return chat.Message{}, errors.ErrMessageNotFound
	}
	if !actor.CanEdit(existing) {
		return chat.Message{}, errors.ErrForbidden
	}

	content, _ = s.moderator.Censor(content)
	edited, found, err := s.store.Edit(ctx, cmd.MessageID, content)
	if err != nil {
		s.metrics.StoreFailed("edit")
		return chat.Message{}, fmt.Errorf("editing message %d: %w", cmd.MessageID, err)
	}
	// Evicted between the lookup and the write.
	if !found {
		return chat.Message{}, errors.ErrMessageNotFound
	}
	s.metrics.MessageEdited()

	s.hub.Broadcast(ctx, event.MessageEdited{Message: edited})
	return edited, nil
}

func (s *ChatService) History(ctx context.Context, limit int) ([]chat.Message, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	return s.store.RecentHistory(ctx, limit)
}
