// Package archive fetches a player's public game history and turns the
// monthly PGN archives into move lists.
package archive

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/chessplay/internal/domain"
)

var ErrInvalidUsername = errors.New("invalid username")

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

type Fetcher interface {
	Archives(ctx context.Context, username string) ([]string, error)
	MonthlyPGN(ctx context.Context, archiveURL string) (string, error)
}

type Service struct {
	fetcher Fetcher
	cache   *Cache
	logger  *zap.Logger
}

// NewService wires a fetcher with an optional Redis cache.
func NewService(fetcher Fetcher, cache *Cache, logger *zap.Logger) (*Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("archive fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{fetcher: fetcher, cache: cache, logger: logger}, nil
}

// Games returns every game in the player's archives, oldest month first.
func (s *Service) Games(ctx context.Context, username string) ([]domain.ArchivedGame, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}

	if s.cache != nil {
		games, err := s.cache.Load(ctx, username)
		if err != nil {
			s.logger.Warn("archive cache load failed", zap.String("username", username), zap.Error(err))
		} else if games != nil {
			return games, nil
		}
	}

	archives, err := s.fetcher.Archives(ctx, username)
	if err != nil {
		return nil, err
	}
	games := make([]domain.ArchivedGame, 0)
	for _, archiveURL := range archives {
		pgn, err := s.fetcher.MonthlyPGN(ctx, archiveURL)
		if err != nil {
			return nil, err
		}
		parsed, skipped := ParsePGN(pgn)
		if skipped > 0 {
			s.logger.Warn("skipped unparsable games",
				zap.String("archive", archiveURL),
				zap.Int("skipped", skipped))
		}
		games = append(games, parsed...)
	}

	if s.cache != nil {
		if err := s.cache.Save(ctx, username, games); err != nil {
			s.logger.Warn("archive cache save failed", zap.String("username", username), zap.Error(err))
		}
	}
	s.logger.Info("archive loaded",
		zap.String("username", username),
		zap.Int("archives", len(archives)),
		zap.Int("games", len(games)))
	return games, nil
}
