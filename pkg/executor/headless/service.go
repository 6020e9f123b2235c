package headless

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/entrhq/forage/pkg/agent"
	"github.com/entrhq/forage/pkg/browser"
	"github.com/entrhq/forage/pkg/metrics"
)

// Service runs browsing tasks end to end: it admits the request through the
// pool, runs the agent loop in the issued session and releases the session.
type Service struct {
	pool      *browser.Pool
	loop      *agent.Loop
	budgets   agent.Budgets
	artifacts *ArtifactWriter
	logger    *zap.Logger
	metrics   *metrics.Collector
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records request durations.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithArtifacts writes a record of every run.
func WithArtifacts(cfg ArtifactConfig) Option {
	return func(s *Service) {
		if cfg.Enabled {
			s.artifacts = NewArtifactWriter(cfg)
		}
	}
}

// New creates a service. The pool and loop are owned by the caller until
// Shutdown.
func New(pool *browser.Pool, loop *agent.Loop, budgets agent.Budgets, opts ...Option) (*Service, error) {
	if pool == nil || loop == nil {
		return nil, fmt.Errorf("pool and loop are required")
	}
	if err := budgets.Validate(); err != nil {
		return nil, fmt.Errorf("invalid budgets: %w", err)
	}
	s := &Service{
		pool:    pool,
		loop:    loop,
		budgets: budgets,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(zap.String("component", "service"))
	return s, nil
}

// Run executes one task. Per-request failures are reported in the Result;
// an error is returned only when the request could not be admitted: the
// context ended while waiting for a session, or the browser failed to start.
func (s *Service) Run(ctx context.Context, task string) (*agent.Result, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, fmt.Errorf("task is required")
	}

	requestID := uuid.NewString()
	logger := s.logger.With(zap.String("request_id", requestID))
	started := time.Now()
	logger.Info("Starting run", zap.String("task", task))

	var res *agent.Result
	err := s.pool.WithSession(ctx, func(ctx context.Context, sess *browser.Session) error {
		logger.Debug("Session acquired", zap.Duration("waited", time.Since(started)))
		res = s.loop.Run(ctx, task, sess, s.budgets)
		return nil
	})
	s.metrics.RecordRequest(time.Since(started))
	if err != nil {
		logger.Warn("Run not admitted", zap.Error(err))
		return nil, fmt.Errorf("failed to acquire browser session: %w", err)
	}

	if s.artifacts != nil {
		paths, werr := s.artifacts.WriteAll(&RunRecord{
			RequestID:  requestID,
			Task:       task,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Result:     res,
		})
		if werr != nil {
			logger.Warn("Failed to write artifacts", zap.Error(werr))
		} else {
			logger.Debug("Artifacts written", zap.Strings("paths", paths))
		}
	}

	logger.Info("Run complete",
		zap.Bool("success", res.Success),
		zap.Bool("partial", res.Partial),
		zap.Float64("duration_seconds", res.DurationSeconds))
	return res, nil
}

// Shutdown closes the shared browser.
func (s *Service) Shutdown() error {
	return s.pool.Shutdown()
}
