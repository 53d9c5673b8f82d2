package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig configures the decision and analysis service.
type ServerConfig struct {
	HTTPAddr string
	PlayAddr string

	StockfishPath     string
	StockfishPoolSize int
	StockfishThreads  int
	StockfishHashMB   int
	BotMoveTime       time.Duration
	AnalyzeTime       time.Duration

	OpeningBookPath   string
	OpeningBookMaxPly int

	RedisURL        string
	ArchiveCacheTTL time.Duration
	DatabaseURL     string
	ChessComBaseURL string

	MsgOverrideDir string

	// websocket play sessions
	AllowedOrigins      []string
	PlayRequestTimeout  time.Duration
	PlayDefaultStrength int
}

// ClientConfig configures binaries that talk to a running decision service.
type ClientConfig struct {
	BotServiceURL  string
	RequestTimeout time.Duration
	MsgOverrideDir string
	LogFile        string
}

func Load() (*ServerConfig, error) {
	cfg := &ServerConfig{
		HTTPAddr:           ":8080",
		PlayAddr:           ":8081",
		StockfishHashMB:    64,
		StockfishThreads:   1,
		BotMoveTime:        500 * time.Millisecond,
		AnalyzeTime:        100 * time.Millisecond,
		OpeningBookMaxPly:  12,
		ArchiveCacheTTL:    30 * time.Minute,
		ChessComBaseURL:    "https://api.chess.com",
		PlayRequestTimeout: 10 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("PLAY_ADDR")); v != "" {
		cfg.PlayAddr = v
	}

	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	cfg.StockfishPoolSize = envInt("STOCKFISH_POOL_SIZE", cfg.StockfishPoolSize)
	cfg.StockfishThreads = envInt("STOCKFISH_THREADS", cfg.StockfishThreads)
	cfg.StockfishHashMB = envInt("STOCKFISH_HASH_MB", cfg.StockfishHashMB)
	if n := envInt("BOT_MOVE_TIME_MS", 0); n > 0 {
		cfg.BotMoveTime = time.Duration(n) * time.Millisecond
	}
	if n := envInt("ANALYZE_TIME_MS", 0); n > 0 {
		cfg.AnalyzeTime = time.Duration(n) * time.Millisecond
	}

	cfg.OpeningBookPath = strings.TrimSpace(os.Getenv("OPENING_BOOK_PATH"))
	cfg.OpeningBookMaxPly = envInt("OPENING_BOOK_MAX_PLY", cfg.OpeningBookMaxPly)

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.ArchiveCacheTTL = envDuration("ARCHIVE_CACHE_TTL", cfg.ArchiveCacheTTL)
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if v := strings.TrimSpace(os.Getenv("CHESSCOM_BASE_URL")); v != "" {
		cfg.ChessComBaseURL = v
	}

	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))

	cfg.AllowedOrigins = envList("PLAY_ALLOWED_ORIGINS")
	cfg.PlayRequestTimeout = envDuration("PLAY_REQUEST_TIMEOUT", cfg.PlayRequestTimeout)
	cfg.PlayDefaultStrength = envInt("PLAY_DEFAULT_STRENGTH", 0)

	if cfg.StockfishPath == "" {
		return nil, errors.New("STOCKFISH_PATH is required")
	}
	return cfg, nil
}

func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		BotServiceURL:  "http://127.0.0.1:8080",
		RequestTimeout: 10 * time.Second,
	}
	if v := strings.TrimSpace(os.Getenv("BOT_SERVICE_URL")); v != "" {
		cfg.BotServiceURL = v
	}
	cfg.RequestTimeout = envDuration("BOT_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))
	cfg.LogFile = strings.TrimSpace(os.Getenv("LOG_FILE"))

	if !strings.HasPrefix(cfg.BotServiceURL, "http://") && !strings.HasPrefix(cfg.BotServiceURL, "https://") {
		return nil, errors.New("BOT_SERVICE_URL must be an http(s) URL")
	}
	return cfg, nil
}

// envInt keeps def when the variable is unset or not a positive integer.
func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// envDuration accepts Go durations ("30s") or whole seconds ("30").
// A value of "0" disables the duration.
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
