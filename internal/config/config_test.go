package config

import (
	"testing"
	"time"
)

func TestLoadRequiresStockfish(t *testing.T) {
	t.Setenv("STOCKFISH_PATH", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without STOCKFISH_PATH")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STOCKFISH_PATH", "/usr/bin/stockfish")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("BOT_MOVE_TIME_MS", "")
	t.Setenv("ARCHIVE_CACHE_TTL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.BotMoveTime != 500*time.Millisecond || cfg.AnalyzeTime != 100*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ArchiveCacheTTL != 30*time.Minute {
		t.Fatalf("unexpected cache ttl: %v", cfg.ArchiveCacheTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STOCKFISH_PATH", " /opt/stockfish ")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("STOCKFISH_POOL_SIZE", "3")
	t.Setenv("STOCKFISH_HASH_MB", "not-a-number")
	t.Setenv("BOT_MOVE_TIME_MS", "250")
	t.Setenv("ARCHIVE_CACHE_TTL", "2h")
	t.Setenv("PLAY_ALLOWED_ORIGINS", "localhost:3000, ,example.com")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StockfishPath != "/opt/stockfish" || cfg.HTTPAddr != ":9000" || cfg.StockfishPoolSize != 3 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.StockfishHashMB != 64 {
		t.Fatalf("malformed value should keep default, got %d", cfg.StockfishHashMB)
	}
	if cfg.BotMoveTime != 250*time.Millisecond || cfg.ArchiveCacheTTL != 2*time.Hour {
		t.Fatalf("unexpected durations: %v %v", cfg.BotMoveTime, cfg.ArchiveCacheTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "example.com" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("BOT_SERVICE_URL", "")
	t.Setenv("BOT_REQUEST_TIMEOUT", "0")
	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("load client: %v", err)
	}
	if cfg.BotServiceURL != "http://127.0.0.1:8080" || cfg.RequestTimeout != 0 {
		t.Fatalf("unexpected client config: %+v", cfg)
	}

	t.Setenv("BOT_SERVICE_URL", "ftp://bot")
	if _, err := LoadClient(); err == nil {
		t.Fatalf("expected error for non-http url")
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("X_DUR", "15")
	if got := envDuration("X_DUR", time.Second); got != 15*time.Second {
		t.Fatalf("seconds form: %v", got)
	}
	t.Setenv("X_DUR", "1m30s")
	if got := envDuration("X_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("duration form: %v", got)
	}
	t.Setenv("X_DUR", "soon")
	if got := envDuration("X_DUR", time.Second); got != time.Second {
		t.Fatalf("malformed should keep default: %v", got)
	}
}
