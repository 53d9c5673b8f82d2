package archive

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/chessplay/internal/domain"
)

const DefaultCacheTTL = 30 * time.Minute

// Cache keeps parsed archives in Redis so repeat lookups skip the upstream.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) keyGames(username string) string {
	return "archive:games:" + strings.ToLower(strings.TrimSpace(username))
}

type cachedGame struct {
	Headers map[string]string `json:"h"`
	Moves   []string          `json:"m"`
	Opening string            `json:"o,omitempty"`
}

// Load returns nil, nil on a miss.
func (c *Cache) Load(ctx context.Context, username string) ([]domain.ArchivedGame, error) {
	raw, err := c.rdb.Get(ctx, c.keyGames(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rows []cachedGame
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	games := make([]domain.ArchivedGame, len(rows))
	for i, r := range rows {
		games[i] = domain.ArchivedGame(r)
	}
	return games, nil
}

func (c *Cache) Save(ctx context.Context, username string, games []domain.ArchivedGame) error {
	rows := make([]cachedGame, len(games))
	for i, g := range games {
		rows[i] = cachedGame(g)
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.keyGames(username), raw, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, username string) error {
	return c.rdb.Del(ctx, c.keyGames(username)).Err()
}
