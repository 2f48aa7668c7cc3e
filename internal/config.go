package internal

import (
	"fmt"
	"live-hub/runtime"
	"strings"
	"time"
)

const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

type Config struct {
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080"`
	GinMode  string `env:"GIN_MODE,default=release"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	RoomIdleTimeout    time.Duration `env:"ROOM_IDLE_TIMEOUT,default=5m"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	PongWait           time.Duration `env:"PONG_WAIT,default=60s"`
	ReadLimit          int64         `env:"READ_LIMIT,default=65536"`
	RoomQueueSize      int           `env:"ROOM_QUEUE_SIZE,default=256"`
	PersistQueueSize   int           `env:"PERSIST_QUEUE_SIZE,default=256"`
	OutboxSize         int           `env:"OUTBOX_SIZE,default=128"`
	PersistMaxAttempts int           `env:"PERSIST_MAX_ATTEMPTS,default=3"`
	PersistBackoff     time.Duration `env:"PERSIST_BACKOFF,default=50ms"`
	EchoToSender       bool          `env:"ECHO_TO_SENDER,default=false"`
	PersistStrokes     bool          `env:"PERSIST_STROKES,default=true"`
	HistoryLimit       int           `env:"HISTORY_LIMIT,default=0"`
	MaxContentLength   int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL,default=30s"`
	MetricInterval     time.Duration `env:"METRIC_INTERVAL,default=1m"`
	AllowedOrigins     string        `env:"ALLOWED_ORIGINS"`

	StoreBackend   string `env:"STORE_BACKEND,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	RedisAddr      string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB,default=0"`
	RedisPrefix    string `env:"REDIS_PREFIX,default=live-hub"`

	JWTSecret string `env:"JWT_SECRET,required=true"`
	JWTIssuer string `env:"JWT_ISSUER,default=live-hub"`

	MediaAccountID string        `env:"MEDIA_ACCOUNT_ID"`
	MediaAPIKey    string        `env:"MEDIA_API_KEY"`
	MediaAPISecret string        `env:"MEDIA_API_SECRET"`
	MediaTokenTTL  time.Duration `env:"MEDIA_TOKEN_TTL,default=1h"`

	CensoredWordsFile string `env:"CENSORED_WORDS_FILE"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,default=*"`
}

// Validate checks the values the env tags cannot express.
func (c Config) Validate() error {
	if c.StoreBackend != BackendBadger && c.StoreBackend != BackendRedis {
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendBadger, BackendRedis, c.StoreBackend)
	}
	if c.RoomQueueSize <= 0 || c.PersistQueueSize <= 0 || c.OutboxSize <= 0 {
		return fmt.Errorf("queue sizes must be positive")
	}
	if c.PersistMaxAttempts < 1 {
		return fmt.Errorf("PERSIST_MAX_ATTEMPTS must be at least 1, got %d", c.PersistMaxAttempts)
	}
	if c.WriteTimeout <= 0 || c.RoomIdleTimeout <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("timeouts and sweep interval must be positive")
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

// RoomConfig maps the environment onto the runtime settings of every room.
func (c Config) RoomConfig(censor runtime.Censor) runtime.RoomConfig {
	return runtime.RoomConfig{
		QueueSize:          c.RoomQueueSize,
		PersistQueueSize:   c.PersistQueueSize,
		OutboxSize:         c.OutboxSize,
		IdleTimeout:        c.RoomIdleTimeout,
		WriteTimeout:       c.WriteTimeout,
		PersistMaxAttempts: c.PersistMaxAttempts,
		PersistBackoff:     c.PersistBackoff,
		HistoryLimit:       c.HistoryLimit,
		Policy: runtime.DispatchPolicy{
			EchoToSender:   c.EchoToSender,
			PersistStrokes: c.PersistStrokes,
			MaxTextLength:  c.MaxContentLength,
			Censor:         censor,
		},
	}
}

func (c Config) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	origins := strings.Split(c.AllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
