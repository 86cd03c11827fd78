package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"stataggg-chat/auth"
	"stataggg-chat/domain/chat"
	"stataggg-chat/infrastructure/httpapi"
	ws "stataggg-chat/infrastructure/websocket"
	"stataggg-chat/infrastructure/wire"
	"stataggg-chat/moderation"
	"stataggg-chat/observability"
	"stataggg-chat/repositories"
	"stataggg-chat/runtime"
	"stataggg-chat/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const cookieName = "stataggg_session"

// BaseChatSuite runs the whole server in process: Badger on a temp dir,
// the real router and real WebSocket clients.
type BaseChatSuite struct {
	suite.Suite
	Config   Config
	Server   *httptest.Server
	Metrics  *observability.Metrics
	Presence *runtime.Registry

	db      *badger.DB
	store   *repositories.MessageRepository
	users   *repositories.UserRepository
	tokens  *auth.TokenIssuer
	cancel  context.CancelFunc
	clients []*ChatClient
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseChatSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

func (s *BaseChatSuite) SetupTest() {
	req := s.Require()
	log := logs.GetLoggerFromLevel(slog.LevelWarn)

	db, err := badger.Open(badger.DefaultOptions(s.T().TempDir()).WithLogger(nil))
	req.NoError(err)
	s.db = db

	registry := prometheus.NewRegistry()
	s.Metrics = observability.NewMetrics(registry)
	s.store, err = repositories.NewMessageRepository(db, log, chat.HistoryLimit, s.Metrics)
	req.NoError(err)
	moderator, err := moderation.NewModerator([]string{"darn"}, '*', log)
	req.NoError(err)

	s.Presence = runtime.NewRegistry()
	hub := runtime.NewHub(s.Presence, log, time.Second, s.Metrics)
	service := services.NewChatService(s.store, s.Presence, hub, moderator, s.Metrics, log, chat.HistoryLimit)
	s.users = repositories.NewUserRepository(db)
	s.tokens = auth.NewTokenIssuer("e2e-secret", time.Hour)

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	handler := ws.NewHandler(ctx, auth.NewResolver(s.tokens, s.users, log), service, s.Metrics, log, ws.Options{
		CookieName: cookieName,
	})
	api := httpapi.NewAPI(service, s.users, s.tokens, log, httpapi.Options{
		CookieName: cookieName,
		SessionTTL: time.Hour,
	})
	s.Server = httptest.NewServer(httpapi.NewRouter(api, handler, registry))
	s.clients = nil
}

func (s *BaseChatSuite) TearDownTest() {
	for _, c := range s.clients {
		_ = c.conn.Close()
	}
	s.cancel()
	s.Server.Close()
	_ = s.store.Close()
	_ = s.db.Close()
}

// Login stores the user and returns the session cookie value for it.
func (s *BaseChatSuite) Login(key, username string, admin bool) string {
	req := s.Require()
	req.NoError(s.users.PutUser(context.Background(), repositories.User{
		Key:      key,
		Username: username,
		IsAdmin:  admin,
	}))
	roles := []string{"user"}
	if admin {
		roles = append(roles, "admin")
	}
	token, err := s.tokens.Generate(key, roles)
	req.NoError(err)
	return token
}

// Dial opens a WebSocket on /ws/chat. An empty token connects anonymously.
func (s *BaseChatSuite) Dial(name, token string) *ChatClient {
	t := s.T()
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	headers := http.Header{}
	if token != "" {
		headers.Add("Cookie", (&http.Cookie{Name: cookieName, Value: token}).String())
	}
	url := "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/ws/chat"
	conn, resp, err := websocket.DefaultDialer.Dial(url, headers)
	s.Require().NoError(err, "Failed to dial "+url)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	client := &ChatClient{t: t, name: name, conn: conn, config: s.Config}
	s.clients = append(s.clients, client)
	return client
}

// History reads the log through the HTTP priming endpoint.
func (s *BaseChatSuite) History() []wire.HistoryItem {
	req := s.Require()
	resp, err := http.Get(s.Server.URL + "/api/chat/history")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var items []wire.HistoryItem
	req.NoError(json.NewDecoder(resp.Body).Decode(&items))
	return items
}

// ChatClient is one browser tab. Frames read while waiting for something
// else are kept, so assertions do not depend on interleaving across broadcasts.
type ChatClient struct {
	t       *testing.T
	name    string
	conn    *websocket.Conn
	config  Config
	pending [][]byte
}

func (c *ChatClient) Send(frame map[string]any) {
	c.t.Helper()
	if c.config.DebugJSON {
		b, _ := json.Marshal(frame)
		c.t.Logf("%s -> %s", c.name, b)
	}
	require.NoError(c.t, c.conn.WriteJSON(frame))
}

func (c *ChatClient) Close() {
	_ = c.conn.Close()
}

func (c *ChatClient) NextHistory() wire.HistoryFrame {
	c.t.Helper()
	var frame wire.HistoryFrame
	c.await("history", &frame, nil)
	return frame
}

func (c *ChatClient) NextMessage() wire.NewMessageFrame {
	c.t.Helper()
	var frame wire.NewMessageFrame
	c.await("new_message", &frame, nil)
	return frame
}

func (c *ChatClient) NextDelete() wire.DeleteFrame {
	c.t.Helper()
	var frame wire.DeleteFrame
	c.await("delete", &frame, nil)
	return frame
}

func (c *ChatClient) NextEdit() wire.EditFrame {
	c.t.Helper()
	var frame wire.EditFrame
	c.await("edit", &frame, nil)
	return frame
}

// AwaitOnline waits for a presence announcement listing exactly these user keys.
func (c *ChatClient) AwaitOnline(keys ...string) wire.OnlineListFrame {
	c.t.Helper()
	var frame wire.OnlineListFrame
	c.await("online_list", &frame, func(data []byte) bool {
		var candidate wire.OnlineListFrame
		if json.Unmarshal(data, &candidate) != nil {
			return false
		}
		ids := make([]string, 0, len(candidate.Users))
		for _, u := range candidate.Users {
			ids = append(ids, u.ID)
		}
		return slices.Equal(ids, keys)
	})
	return frame
}

// await returns the first frame of the given type accepted by match,
// looking at buffered frames before reading new ones.
func (c *ChatClient) await(frameType string, v any, match func(data []byte) bool) {
	c.t.Helper()
	accept := func(data []byte) bool {
		var head struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &head) != nil || head.Type != frameType {
			return false
		}
		return match == nil || match(data)
	}

	for i, data := range c.pending {
		if accept(data) {
			c.pending = slices.Delete(c.pending, i, i+1)
			require.NoError(c.t, json.Unmarshal(data, v))
			return
		}
	}

	deadline := time.Now().Add(c.config.Timeout)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "%s was waiting for %s", c.name, frameType)
		if c.config.DebugJSON {
			c.t.Logf("%s <- %s", c.name, data)
		}
		if accept(data) {
			require.NoError(c.t, json.Unmarshal(data, v))
			return
		}
		c.pending = append(c.pending, data)
	}
}
