package chessbuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chessplay/internal/analysis"
	"github.com/park285/chessplay/internal/archive"
	corechess "github.com/park285/chessplay/internal/chess"
	"github.com/park285/chessplay/internal/chess/openingbook"
	"github.com/park285/chessplay/internal/config"
	"github.com/park285/chessplay/internal/msgcat"
	"github.com/park285/chessplay/internal/server"
)

type Deps struct {
	Engine   *corechess.Engine
	Analyzer *analysis.Analyzer
	Archive  *archive.Service
	Repo     analysis.Repository
	Messages *msgcat.Catalog

	db  *sql.DB
	rdb *redis.Client
}

// New builds every collaborator of the service. Redis and Postgres are
// optional: without them archives are fetched on every request and analyses
// are cached in memory.
func New(ctx context.Context, cfg *config.ServerConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.StockfishPath) == "" {
		return nil, fmt.Errorf("STOCKFISH_PATH is required for chess engine")
	}

	msgs, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d := &Deps{Messages: msgs}

	// Opening book (optional)
	var book *openingbook.Book
	if strings.TrimSpace(cfg.OpeningBookPath) != "" {
		book, err = openingbook.Open(cfg.OpeningBookPath, cfg.OpeningBookMaxPly)
		if err != nil {
			return nil, err
		}
		logger.Info("opening book loaded", zap.String("path", cfg.OpeningBookPath), zap.Int("max_ply", cfg.OpeningBookMaxPly))
	}

	d.Engine, err = corechess.NewEngine(corechess.EngineConfig{
		BinaryPath:  cfg.StockfishPath,
		PoolSize:    cfg.StockfishPoolSize,
		Threads:     cfg.StockfishThreads,
		HashMB:      cfg.StockfishHashMB,
		MoveTime:    cfg.BotMoveTime,
		AnalyzeTime: cfg.AnalyzeTime,
		Book:        book,
		Logger:      logger.Named("engine"),
	})
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}

	// Analysis cache: Postgres when configured, memory otherwise.
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.db = db
		d.Repo = analysis.NewRepository(db)
	} else {
		logger.Info("DATABASE_URL not set; analyses cached in memory")
		d.Repo = analysis.NewMemoryRepository()
	}
	d.Analyzer, err = analysis.NewAnalyzer(d.Engine, d.Repo, logger.Named("analysis"))
	if err != nil {
		_ = d.Close()
		return nil, err
	}

	// Archive cache (Redis optional)
	var cache *archive.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		d.rdb = redis.NewClient(opts)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = d.rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		cache = archive.NewCache(d.rdb, cfg.ArchiveCacheTTL)
	}
	client := archive.NewClient(cfg.ChessComBaseURL, archive.WithClientLogger(logger.Named("chesscom")))
	d.Archive, err = archive.NewService(client, cache, logger.Named("archive"))
	if err != nil {
		_ = d.Close()
		return nil, err
	}

	return d, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	// basic pool settings
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := analysis.EnsureSchema(pctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

// ServerConfig returns the HTTP server wiring for these dependencies.
func (d *Deps) ServerConfig(timeout time.Duration, logger *zap.Logger) server.Config {
	return server.Config{
		Engine:         d.Engine,
		Analyzer:       d.Analyzer,
		Archive:        d.Archive,
		Messages:       d.Messages,
		Logger:         logger,
		RequestTimeout: timeout,
	}
}

// Requester lets in-process play sessions ask the engine directly instead of
// going through the HTTP API.
func (d *Deps) Requester() EngineRequester {
	return EngineRequester{Engine: d.Engine}
}

type EngineRequester struct {
	Engine server.MoveEngine
}

func (r EngineRequester) RequestMove(ctx context.Context, fen string, strength int) (string, error) {
	if r.Engine == nil {
		return "", errors.New("engine not loaded")
	}
	return r.Engine.BestMove(ctx, fen, corechess.ClampRating(strength))
}

func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Engine != nil {
		errs = append(errs, d.Engine.Close())
	}
	if d.db != nil {
		errs = append(errs, d.db.Close())
	}
	if d.rdb != nil {
		errs = append(errs, d.rdb.Close())
	}
	return errors.Join(errs...)
}
