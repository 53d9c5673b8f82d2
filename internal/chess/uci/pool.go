package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

type PoolConfig struct {
	BinaryPath string
	Capacity   int
	Logger     *zap.Logger
}

// Pool keeps warm engine processes grouped by process options. Strength is
// per search, so one bucket serves every rating.
type Pool struct {
	binaryPath string
	capacity   int
	logger     *zap.Logger

	mu       sync.Mutex
	buckets  map[Options]*bucket
	sessions map[*Session]*bucket
}

var errBucketAtCapacity = errors.New("engine bucket at capacity")

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("stockfish binary check: %w", err)
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		binaryPath: cfg.BinaryPath,
		capacity:   capacity,
		logger:     logger,
		buckets:    make(map[Options]*bucket),
		sessions:   make(map[*Session]*bucket),
	}, nil
}

// Acquire returns an idle process or starts one, waiting when the bucket is
// full. Every Acquire must be paired with Release.
func (p *Pool) Acquire(ctx context.Context, opt Options) (*Session, error) {
	b := p.bucketFor(opt)
	for {
		if s, ok := p.takeIdle(ctx, b); ok {
			return s, nil
		}

		s, err := b.create(ctx, p.logger)
		if err == nil {
			p.track(s, b)
			return s, nil
		}
		if !errors.Is(err, errBucketAtCapacity) {
			return nil, err
		}

		select {
		case s := <-b.idle:
			if err := s.EnsureReady(ctx); err != nil {
				p.logger.Debug("dropping unresponsive engine", zap.Error(err))
				b.discard(s)
				continue
			}
			p.track(s, b)
			return s, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) takeIdle(ctx context.Context, b *bucket) (*Session, bool) {
	for {
		select {
		case s := <-b.idle:
			if err := s.EnsureReady(ctx); err != nil {
				p.logger.Debug("dropping unresponsive engine", zap.Error(err))
				b.discard(s)
				continue
			}
			p.track(s, b)
			return s, true
		default:
			return nil, false
		}
	}
}

// Release returns a session to its bucket; a non-nil err discards it.
func (p *Pool) Release(s *Session, err error) {
	if s == nil {
		return
	}
	p.mu.Lock()
	b, ok := p.sessions[s]
	delete(p.sessions, s)
	p.mu.Unlock()

	if !ok {
		_ = s.Close()
		return
	}
	if err != nil || !b.put(s) {
		b.discard(s)
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	buckets := make([]*bucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.mu.Unlock()

	var errs []error
	for _, b := range buckets {
		errs = append(errs, b.drain()...)
	}
	return errors.Join(errs...)
}

func (p *Pool) track(s *Session, b *bucket) {
	p.mu.Lock()
	p.sessions[s] = b
	p.mu.Unlock()
}

func (p *Pool) bucketFor(opt Options) *bucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[opt]
	if !ok {
		b = &bucket{
			opt:        opt,
			capacity:   p.capacity,
			binaryPath: p.binaryPath,
			idle:       make(chan *Session, p.capacity),
		}
		p.buckets[opt] = b
	}
	return b
}

type bucket struct {
	opt        Options
	capacity   int
	binaryPath string

	mu    sync.Mutex
	total int
	idle  chan *Session
}

func (b *bucket) create(ctx context.Context, logger *zap.Logger) (*Session, error) {
	b.mu.Lock()
	if b.total >= b.capacity {
		b.mu.Unlock()
		return nil, errBucketAtCapacity
	}
	b.total++
	b.mu.Unlock()

	s, err := NewSession(ctx, b.binaryPath, b.opt, logger)
	if err != nil {
		b.decrement()
		return nil, err
	}
	return s, nil
}

func (b *bucket) put(s *Session) bool {
	select {
	case b.idle <- s:
		return true
	default:
		return false
	}
}

func (b *bucket) discard(s *Session) {
	_ = s.Close()
	b.decrement()
}

func (b *bucket) drain() []error {
	var errs []error
	for {
		select {
		case s := <-b.idle:
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
			b.decrement()
		default:
			return errs
		}
	}
}

func (b *bucket) decrement() {
	b.mu.Lock()
	if b.total > 0 {
		b.total--
	}
	b.mu.Unlock()
}

func defaultCapacity() int {
	return min(max(runtime.NumCPU(), 2), 4)
}
