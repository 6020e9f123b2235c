package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/entrhq/forage/pkg/metrics"
)

// Pool owns one shared browser process and hands out isolated sessions.
// A weighted semaphore bounds the number of sessions held at once; callers
// beyond the limit block in Acquire until a session is released.
type Pool struct {
	engine  Engine
	limit   int
	sem     *semaphore.Weighted
	logger  *zap.Logger
	metrics *metrics.Collector

	mu          sync.Mutex
	instance    Instance
	initialized bool
	closed      bool
	inUse       int
}

// NewPool creates a pool that launches its browser through engine.
// The browser is not started until the first Initialize or Acquire.
func NewPool(engine Engine, maxSessions int, logger *zap.Logger, collector *metrics.Collector) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &Pool{
		engine:  engine,
		limit:   maxSessions,
		sem:     semaphore.NewWeighted(int64(maxSessions)),
		logger:  logger.With(zap.String("component", "browser_pool")),
		metrics: collector,
	}
}

// Initialize launches the shared browser. It is safe to call concurrently and
// repeatedly; only the first call after a disconnect launches a process.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if p.initialized {
		return nil
	}

	inst, err := p.engine.Launch(ctx)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	inst.OnDisconnect(func() { p.handleDisconnect(inst) })

	p.instance = inst
	p.initialized = true
	p.logger.Info("browser launched", zap.Int("max_sessions", p.limit))
	return nil
}

// handleDisconnect marks the pool uninitialized so the next Acquire relaunches
// and releases the crashed instance. Notifications from an instance that was
// already replaced are ignored.
func (p *Pool) handleDisconnect(inst Instance) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.instance != inst {
		return
	}
	p.instance = nil
	p.initialized = false
	p.logger.Warn("browser disconnected, will relaunch on next acquire")

	// Stop the crashed instance's driver. This runs off the disconnect
	// callback, which may be invoked on the driver's own event goroutine.
	go func() {
		if err := inst.Close(); err != nil {
			p.logger.Debug("closing disconnected browser failed", zap.Error(err))
		}
	}()
}

// Acquire blocks until a permit is free or ctx ends, then opens a fresh
// isolated session. The permit is returned if the session cannot be created.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for browser session: %w", err)
	}
	p.metrics.RecordSessionWait(time.Since(start))

	session, err := p.open(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}

	p.mu.Lock()
	p.inUse++
	inUse := p.inUse
	p.mu.Unlock()
	p.metrics.SetSessionsInUse(inUse)

	p.logger.Debug("session acquired", zap.String("session_id", session.ID), zap.Int("in_use", inUse))
	return session, nil
}

func (p *Pool) open(ctx context.Context) (*Session, error) {
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	inst := p.instance
	p.mu.Unlock()
	if inst == nil {
		return nil, ErrNotInitialized
	}

	page, err := inst.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return newSession(page, inst), nil
}

// Release closes the session and returns its permit. The permit is returned
// even when closing fails. Releasing a session twice is a no-op.
func (p *Pool) Release(s *Session) error {
	if s == nil {
		return nil
	}

	var closeErr error
	s.releaseOnce.Do(func() {
		defer p.returnPermit()
		if err := s.page.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close session: %w", err)
			p.logger.Warn("session close failed", zap.String("session_id", s.ID), zap.Error(err))
		}
	})
	return closeErr
}

func (p *Pool) returnPermit() {
	p.mu.Lock()
	p.inUse--
	inUse := p.inUse
	p.mu.Unlock()

	p.sem.Release(1)
	p.metrics.SetSessionsInUse(inUse)
}

// WithSession runs fn with a freshly acquired session and releases it on
// every exit path, including panics in fn.
func (p *Pool) WithSession(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	session, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = p.Release(session) }()

	return fn(ctx, session)
}

// Shutdown closes the shared browser. Sessions still held keep their permits
// until released; subsequent Acquire calls fail with ErrPoolClosed.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	inst := p.instance
	p.instance = nil
	p.initialized = false
	p.closed = true
	p.mu.Unlock()

	if inst == nil {
		return nil
	}
	if err := inst.Close(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	p.logger.Info("browser pool shut down")
	return nil
}

// Stats reports current pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Limit:       p.limit,
		InUse:       p.inUse,
		Initialized: p.initialized,
		Closed:      p.closed,
	}
}
