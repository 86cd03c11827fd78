package main

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"stataggg-chat/errors"

	"github.com/samber/lo"
)

const (
	driverBadger = "badger"
	driverMongo  = "mongo"
)

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	StorageDriver        string        `env:"STORAGE_DRIVER,default=badger"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	MongoURI             string        `env:"MONGO_URI"`
	MongoDatabase        string        `env:"MONGO_DATABASE,default=stataggg"`
	LimitMessages        int           `env:"LIMIT_MESSAGES,default=100"`
	SendTimeout          time.Duration `env:"SEND_TIMEOUT,default=5s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=30s"`
	GCInterval           time.Duration `env:"GC_INTERVAL,default=10m"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,default=1m"`
	JwtSecret            string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=720h"`
	CookieName           string        `env:"COOKIE_NAME,default=stataggg_session"`
	CookieSecure         bool          `env:"COOKIE_SECURE,default=false"`
	BotToken             string        `env:"BOT_TOKEN"`
	LoginMaxAge          time.Duration `env:"LOGIN_MAX_AGE,default=24h"`
	AdminIDs             string        `env:"ADMIN_IDS"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS"`
	CensoredWords        string        `env:"CENSORED_WORDS"`
	CensoredDir          string        `env:"CENSORED_DIR"`
	CharacterReplacement string        `env:"CHARACTER_REPLACEMENT,default=*"`
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) AdminIDList() []string {
	return splitList(c.AdminIDs)
}

func (c Config) AllowedOriginList() []string {
	return splitList(c.AllowedOrigins)
}

func (c Config) CensoredWordList() []string {
	return splitList(c.CensoredWords)
}

// ReplacementRune is the first rune of CHARACTER_REPLACEMENT, '*' when unset.
func (c Config) ReplacementRune() rune {
	r, size := utf8.DecodeRuneInString(c.CharacterReplacement)
	if size == 0 || r == utf8.RuneError {
		return '*'
	}
	return r
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case driverBadger:
	case driverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required with STORAGE_DRIVER=%s", driverMongo)
		}
	default:
		return fmt.Errorf("%w: %q", errors.ErrUnknownDriver, c.StorageDriver)
	}
	if c.LimitMessages <= 0 {
		return fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", c.LimitMessages)
	}
	return nil
}

// splitList reads a comma separated variable, dropping blanks.
func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
}
