package httpapi

import (
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"stataggg-chat/auth"
	"stataggg-chat/domain/chat"
	"stataggg-chat/infrastructure/wire"
	"stataggg-chat/mocks"
	"stataggg-chat/repositories"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const botToken = "123456:TEST-BOT-TOKEN"

type fixture struct {
	service *mocks.MockIChatService
	users   *mocks.MockIUserRepository
	tokens  *auth.TokenIssuer
	router  http.Handler
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)
	f := fixture{
		service: mocks.NewMockIChatService(ctrl),
		users:   mocks.NewMockIUserRepository(ctrl),
		tokens:  auth.NewTokenIssuer("secret", time.Hour),
	}
	api := NewAPI(f.service, f.users, f.tokens, slog.Default(), Options{
		CookieName:  "session",
		BotToken:    botToken,
		AdminIDs:    []string{"1"},
		LoginMaxAge: 24 * time.Hour,
		SessionTTL:  time.Hour,
	})
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	f.router = NewRouter(api, ws, prometheus.NewRegistry())
	return f
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"alive": true}`, rec.Body.String())
}

func TestHistoryHandler(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	createdAt := time.Date(2026, 2, 1, 20, 30, 0, 0, time.Local)
	f.service.EXPECT().History(gomock.Any(), 0).Return([]chat.Message{
		{ID: 1, Content: "first", Author: chat.Identity{UserKey: "1", DisplayName: "root", IsAdmin: true}, CreatedAt: createdAt},
		{ID: 2, Content: "second", Author: chat.Identity{UserKey: "2", DisplayName: "bob"}, CreatedAt: createdAt.Add(time.Minute), Edited: true},
	}, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/history", nil))

	req.Equal(http.StatusOK, rec.Code)
	var items []wire.HistoryItem
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &items))
	req.Len(items, 2)
	req.Equal(int64(1), items[0].ID)
	req.Equal("root", items[0].Username)
	req.Equal("20:30", items[0].CreatedAt)
	req.Equal(createdAt.Unix(), items[0].Timestamp)
	req.True(items[1].IsEdited)
}

func TestHistoryHandler_Empty_Is_Array(t *testing.T) {
	f := newFixture(t)
	f.service.EXPECT().History(gomock.Any(), 0).Return(nil, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/history", nil))
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestHistoryHandler_Store_Error(t *testing.T) {
	f := newFixture(t)
	f.service.EXPECT().History(gomock.Any(), 0).Return(nil, stdErrors.New("badger closed"))

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/history", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func telegramQuery(id string) string {
	values := url.Values{
		"id":         {id},
		"first_name": {"Alice"},
		"username":   {"alice_cs"},
		"auth_date":  {strconv.FormatInt(time.Now().Unix(), 10)},
	}
	values.Set("hash", auth.SignTelegramLogin(values, botToken))
	return values.Encode()
}

func TestTelegramLoginHandler(t *testing.T) {
	t.Run("admin login sets a session cookie", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.users.EXPECT().
			SaveProfile(gomock.Any(), repositories.User{Key: "1", Username: "alice_cs", FirstName: "Alice", IsAdmin: true}).
			Return(repositories.User{Key: "1", Username: "alice_cs", IsAdmin: true}, nil)

		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/telegram?"+telegramQuery("1"), nil))

		req.Equal(http.StatusSeeOther, rec.Code)
		req.Equal("/", rec.Header().Get("Location"))
		cookies := rec.Result().Cookies()
		req.Len(cookies, 1)
		req.Equal("session", cookies[0].Name)
		req.True(cookies[0].HttpOnly)

		claims, err := f.tokens.Validate(cookies[0].Value)
		req.NoError(err)
		req.Equal("1", claims.UserKey)
		req.Contains(claims.Roles, "admin")
	})

	t.Run("regular user is not promoted", func(t *testing.T) {
		f := newFixture(t)
		f.users.EXPECT().
			SaveProfile(gomock.Any(), repositories.User{Key: "77", Username: "alice_cs", FirstName: "Alice"}).
			Return(repositories.User{Key: "77"}, nil)

		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/telegram?"+telegramQuery("77"), nil))
		require.Equal(t, http.StatusSeeOther, rec.Code)
	})

	t.Run("forged hash is rejected", func(t *testing.T) {
		f := newFixture(t)
		f.users.EXPECT().SaveProfile(gomock.Any(), gomock.Any()).Times(0)

		query := telegramQuery("1") + "&photo_url=https%3A%2F%2Fevil.example%2Fx.jpg"
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/telegram?"+query, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogoutHandler_Clears_Cookie(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logout", nil))

	req.Equal(http.StatusSeeOther, rec.Code)
	cookies := rec.Result().Cookies()
	req.Len(cookies, 1)
	req.Equal(-1, cookies[0].MaxAge)
}

func TestChatRoute_Is_Mounted(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/chat", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}
