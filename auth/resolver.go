package auth

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"stataggg-chat/contract"
	"stataggg-chat/domain/chat"
	"stataggg-chat/errors"
	"stataggg-chat/repositories"
)

// Resolver turns the session cookie into a chat identity.
// Missing or bad tokens, unknown users and banned users all resolve to
// anonymous; only directory failures are errors.
type Resolver struct {
	tokens *TokenIssuer
	users  repositories.IUserRepository
	log    *slog.Logger
	now    func() time.Time
}

var _ contract.IIdentityResolver = (*Resolver)(nil)

func NewResolver(tokens *TokenIssuer, users repositories.IUserRepository, log *slog.Logger) *Resolver {
	return &Resolver{tokens: tokens, users: users, log: log, now: time.Now}
}

func (r *Resolver) Resolve(ctx context.Context, credentials contract.Credentials) (chat.Identity, bool, error) {
	if credentials.Token == "" {
		return chat.Identity{}, false, nil
	}
	claims, err := r.tokens.Validate(credentials.Token)
	if err != nil {
		r.log.Debug("Rejected session token", "error", err)
		return chat.Identity{}, false, nil
	}

	user, err := r.users.GetUser(ctx, claims.UserKey)
	if stdErrors.Is(err, errors.ErrUserNotFound) {
		r.log.Debug("Token for unknown user", "user_key", claims.UserKey)
		return chat.Identity{}, false, nil
	}
	if err != nil {
		return chat.Identity{}, false, err
	}
	if user.BannedAt(r.now()) {
		r.log.Info("Banned user connected as anonymous", "user_key", user.Key)
		return chat.Identity{}, false, nil
	}

	return chat.Identity{
		UserKey:     user.Key,
		DisplayName: user.DisplayName(),
		IsAdmin:     user.IsAdmin,
		IsPremium:   user.IsPremium,
		AvatarURL:   user.PhotoURL,
	}, true, nil
}
