// Package httpapi exposes the HTTP side of the chat: history, login,
// health and metrics. The WebSocket endpoint is mounted here too.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"stataggg-chat/auth"
	"stataggg-chat/infrastructure/wire"
	"stataggg-chat/repositories"
	"stataggg-chat/services"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	CookieName   string
	CookieSecure bool
	BotToken     string
	AdminIDs     []string
	LoginMaxAge  time.Duration
	SessionTTL   time.Duration
}

type API struct {
	service services.IChatService
	users   repositories.IUserRepository
	tokens  *auth.TokenIssuer
	log     *slog.Logger
	options Options
	now     func() time.Time
}

func NewAPI(service services.IChatService, users repositories.IUserRepository, tokens *auth.TokenIssuer, log *slog.Logger, options Options) *API {
	return &API{service: service, users: users, tokens: tokens, log: log, options: options, now: time.Now}
}

// NewRouter creates the mux router and all the routes.
func NewRouter(api *API, chat http.Handler, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/api/chat/history", api.HistoryHandler).Methods(http.MethodGet)
	r.HandleFunc("/auth/telegram", api.TelegramLoginHandler).Methods(http.MethodGet)
	r.HandleFunc("/logout", api.LogoutHandler).Methods(http.MethodGet)
	r.Handle("/ws/chat", chat).Methods(http.MethodGet)
	return r
}

func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"alive": true}`)
}

// HistoryHandler returns the recent log, oldest first.
func (a *API) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := a.service.History(r.Context(), 0)
	if err != nil {
		a.errorStatus("failed to read history", http.StatusInternalServerError, w, err)
		return
	}
	b, err := json.Marshal(wire.HistoryItems(messages))
	if err != nil {
		a.errorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// TelegramLoginHandler is the redirect target of the Telegram login widget.
func (a *API) TelegramLoginHandler(w http.ResponseWriter, r *http.Request) {
	login, err := auth.VerifyTelegramLogin(r.URL.Query(), a.options.BotToken, a.options.LoginMaxAge, a.now())
	if err != nil {
		a.errorStatus("invalid telegram login", http.StatusBadRequest, w, err)
		return
	}

	isAdmin := slices.Contains(a.options.AdminIDs, login.ID)
	user, err := a.users.SaveProfile(r.Context(), repositories.User{
		Key:       login.ID,
		Username:  login.Username,
		FirstName: login.FirstName,
		PhotoURL:  login.PhotoURL,
		IsAdmin:   isAdmin,
	})
	if err != nil {
		a.errorStatus("failed to save user", http.StatusInternalServerError, w, err)
		return
	}

	roles := []string{"user"}
	if user.IsAdmin {
		roles = append(roles, "admin")
	}
	token, err := a.tokens.Generate(user.Key, roles)
	if err != nil {
		a.errorStatus("failed to issue session", http.StatusInternalServerError, w, err)
		return
	}
	a.log.Info("User logged in", "user_key", user.Key, "is_admin", user.IsAdmin)

	http.SetCookie(w, &http.Cookie{
		Name:     a.options.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.options.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.options.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *API) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.options.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *API) errorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	a.log.Error(message, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	b, _ := json.Marshal(map[string]string{"response": fmt.Sprintf("%s, %v", message, err)})
	_, _ = w.Write(b)
}
