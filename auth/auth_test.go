package auth

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"stataggg-chat/contract"
	"stataggg-chat/domain/chat"
	"stataggg-chat/errors"
	"stataggg-chat/mocks"
	"stataggg-chat/repositories"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	secret   = "a-test-secret-long-enough-for-hs256"
	botToken = "123456:TEST-BOT-TOKEN"
)

func TestToken_Generate_And_Validate(t *testing.T) {
	req := require.New(t)
	tokens := NewTokenIssuer(secret, time.Hour)

	token, err := tokens.Generate("42", []string{"admin"})
	req.NoError(err)

	claims, err := tokens.Validate(token)
	req.NoError(err)
	req.Equal("42", claims.UserKey)
	req.Equal([]string{"admin"}, claims.Roles)
}

func TestToken_Rejects_Expired_Wrong_Secret_And_Algorithm(t *testing.T) {
	req := require.New(t)
	tokens := NewTokenIssuer(secret, time.Hour)

	// Expired
	expired := NewTokenIssuer(secret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := expired.Generate("42", nil)
	req.NoError(err)
	_, err = tokens.Validate(token)
	req.ErrorIs(err, errors.ErrInvalidToken)

	// Other secret
	token, err = NewTokenIssuer("another-secret", time.Hour).Generate("42", nil)
	req.NoError(err)
	_, err = tokens.Validate(token)
	req.ErrorIs(err, errors.ErrInvalidToken)

	// Unsigned
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &CustomClaims{
		UserKey:          "42",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)
	_, err = tokens.Validate(unsigned)
	req.ErrorIs(err, errors.ErrInvalidToken)

	// Garbage
	_, err = tokens.Validate("not.a.token")
	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestResolver_Resolve(t *testing.T) {
	tokens := NewTokenIssuer(secret, time.Hour)
	valid, err := tokens.Generate("42", nil)
	require.NoError(t, err)
	unknown, err := tokens.Generate("404", nil)
	require.NoError(t, err)

	now := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		token   string
		user    *repositories.User
		lookup  error
		want    chat.Identity
		wantOK  bool
		wantErr bool
	}{
		{name: "no cookie", token: ""},
		{name: "garbage token", token: "garbage"},
		{name: "unknown user", token: unknown, lookup: errors.ErrUserNotFound},
		{name: "directory down", token: valid, lookup: stdErrors.New("badger closed"), wantErr: true},
		{
			name:  "permanently banned",
			token: valid,
			user:  &repositories.User{Key: "42", Username: "troll", IsBanned: true},
		},
		{
			name:   "ban expired",
			token:  valid,
			user:   &repositories.User{Key: "42", Username: "reformed", IsBanned: true, BanUntil: now.Add(-time.Hour)},
			want:   chat.Identity{UserKey: "42", DisplayName: "reformed"},
			wantOK: true,
		},
		{
			name:   "premium admin without username",
			token:  valid,
			user:   &repositories.User{Key: "42", FirstName: "Ivan", IsAdmin: true, IsPremium: true, PhotoURL: "https://t.me/i/ivan.jpg"},
			want:   chat.Identity{UserKey: "42", DisplayName: "Ivan", IsAdmin: true, IsPremium: true, AvatarURL: "https://t.me/i/ivan.jpg"},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			users := mocks.NewMockIUserRepository(ctrl)
			if tt.user != nil {
				users.EXPECT().GetUser(gomock.Any(), tt.user.Key).Return(*tt.user, nil)
			}
			if tt.lookup != nil {
				users.EXPECT().GetUser(gomock.Any(), gomock.Any()).Return(repositories.User{}, tt.lookup)
			}
			resolver := NewResolver(tokens, users, slog.Default())
			resolver.now = func() time.Time { return now }

			identity, ok, err := resolver.Resolve(context.Background(), contract.Credentials{Token: tt.token})
			if tt.wantErr {
				req.Error(err)
				return
			}
			req.NoError(err)
			req.Equal(tt.wantOK, ok)
			req.Equal(tt.want, identity)
		})
	}
}

func signedLogin(values url.Values) url.Values {
	values.Set("hash", SignTelegramLogin(values, botToken))
	return values
}

func TestVerifyTelegramLogin(t *testing.T) {
	now := time.Unix(1_780_000_000, 0)
	fresh := url.Values{
		"id":         {"100500"},
		"first_name": {"Alice"},
		"username":   {"alice_cs"},
		"photo_url":  {"https://t.me/i/userpic/alice.jpg"},
		"auth_date":  {"1779999000"},
	}

	t.Run("valid payload", func(t *testing.T) {
		req := require.New(t)
		login, err := VerifyTelegramLogin(signedLogin(cloneValues(fresh)), botToken, 24*time.Hour, now)
		req.NoError(err)
		req.Equal("100500", login.ID)
		req.Equal("alice_cs", login.Username)
	})

	t.Run("tampered field", func(t *testing.T) {
		values := signedLogin(cloneValues(fresh))
		values.Set("id", "1")
		_, err := VerifyTelegramLogin(values, botToken, 24*time.Hour, now)
		require.ErrorIs(t, err, errors.ErrInvalidTelegramHash)
	})

	t.Run("other bot", func(t *testing.T) {
		values := cloneValues(fresh)
		values.Set("hash", SignTelegramLogin(values, "999:OTHER"))
		_, err := VerifyTelegramLogin(values, botToken, 24*time.Hour, now)
		require.ErrorIs(t, err, errors.ErrInvalidTelegramHash)
	})

	t.Run("missing hash", func(t *testing.T) {
		_, err := VerifyTelegramLogin(cloneValues(fresh), botToken, 0, now)
		require.ErrorIs(t, err, errors.ErrInvalidTelegramHash)
	})

	t.Run("stale auth_date", func(t *testing.T) {
		_, err := VerifyTelegramLogin(signedLogin(cloneValues(fresh)), botToken, time.Minute, now)
		require.ErrorIs(t, err, errors.ErrInvalidTelegramHash)
	})

	t.Run("optional fields left out", func(t *testing.T) {
		values := signedLogin(url.Values{"id": {"7"}, "first_name": {"Bob"}, "auth_date": {"1779999000"}})
		login, err := VerifyTelegramLogin(values, botToken, 0, now)
		require.NoError(t, err)
		require.Empty(t, login.Username)
	})
}

func cloneValues(values url.Values) url.Values {
	out := url.Values{}
	for k, v := range values {
		out[k] = append([]string(nil), v...)
	}
	return out
}
