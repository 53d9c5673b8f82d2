package analysis

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/chessplay/internal/domain"
)

// memrepo backs the analysis cache when no database is configured.
type memrepo struct {
	mu     sync.RWMutex
	nextID int64
	byKey  map[string]*domain.StoredAnalysis
}

func NewMemoryRepository() Repository {
	return &memrepo{byKey: make(map[string]*domain.StoredAnalysis)}
}

func (m *memrepo) InsertAnalysis(_ context.Context, a *domain.StoredAnalysis) error {
	if a == nil {
		return ErrDuplicateAnalysis
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byKey[a.Key]; exists {
		return ErrDuplicateAnalysis
	}
	m.nextID++
	a.ID = m.nextID
	stored := clone(a)
	m.byKey[a.Key] = stored
	return nil
}

func (m *memrepo) GetAnalysis(_ context.Context, key string) (*domain.StoredAnalysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	return clone(a), nil
}

func (m *memrepo) GetRecentAnalyses(_ context.Context, limit int) ([]*domain.StoredAnalysis, error) {
	m.mu.RLock()
	items := make([]*domain.StoredAnalysis, 0, len(m.byKey))
	for _, a := range m.byKey {
		items = append(items, clone(a))
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func clone(a *domain.StoredAnalysis) *domain.StoredAnalysis {
	c := *a
	c.MovesUCI = append([]string(nil), a.MovesUCI...)
	c.Result.Moves = append([]domain.MoveAnalysis(nil), a.Result.Moves...)
	c.Result.TopBlunders = append([]domain.MoveAnalysis(nil), a.Result.TopBlunders...)
	return &c
}
