package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/entrhq/forage/pkg/metrics"
	"github.com/entrhq/forage/pkg/types"
)

// Executor dispatches browser actions by kind.
type Executor struct {
	opts     Options
	analyzer Analyzer
	blocks   *BlockDetector
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithAnalyzer enables visual analysis after take_screenshot.
func WithAnalyzer(a Analyzer) ExecutorOption {
	return func(e *Executor) { e.analyzer = a }
}

// WithMetrics records per-action outcomes.
func WithMetrics(c *metrics.Collector) ExecutorOption {
	return func(e *Executor) { e.metrics = c }
}

// WithLogger sets the executor logger.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an executor. Zero-valued options fall back to defaults.
func NewExecutor(opts Options, options ...ExecutorOption) *Executor {
	def := DefaultOptions()
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = def.ActionTimeout
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = def.NavigationTimeout
	}
	if opts.FetchMaxURLs <= 0 {
		opts.FetchMaxURLs = def.FetchMaxURLs
	}
	if opts.FetchTextChars <= 0 {
		opts.FetchTextChars = def.FetchTextChars
	}
	if opts.SnapshotChars <= 0 {
		opts.SnapshotChars = def.SnapshotChars
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = def.PreviewChars
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = def.MaxWait
	}

	e := &Executor{
		opts:   opts,
		blocks: NewBlockDetector(),
		logger: zap.NewNop(),
	}
	for _, o := range options {
		o(e)
	}
	e.logger = e.logger.With(zap.String("component", "tool_executor"))
	return e
}

// Options returns the effective options.
func (e *Executor) Options() Options {
	return e.opts
}

// Execute runs one tool call and returns its text result. Failures are
// reported in the text, never as an error.
func (e *Executor) Execute(ctx context.Context, sess Session, call types.ToolCall, rec Recorder) (result string) {
	if rec == nil {
		rec = noopRecorder{}
	}
	kind := ActionKind(call.Name)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("action panicked", zap.String("action", call.Name), zap.Any("panic", r))
			result = formatError(call.Name, fmt.Errorf("panic: %v", r))
			e.metrics.RecordToolCall(call.Name, true)
		}
	}()

	h, ok := handlers[kind]
	if !ok {
		e.metrics.RecordToolCall("unknown", true)
		return formatError(call.Name, fmt.Errorf("unknown action (available: %s)", availableActions()))
	}

	actx, cancel := context.WithTimeout(ctx, h.timeout(e.opts))
	defer cancel()

	out, err := h.run(e, actx, sess, call.Arguments, rec)
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s: %w", h.timeout(e.opts), err)
		}
		e.logger.Debug("action failed",
			zap.String("action", call.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		e.metrics.RecordToolCall(call.Name, true)
		return formatError(call.Name, err)
	}

	e.logger.Debug("action completed",
		zap.String("action", call.Name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("result_chars", len(out)))
	e.metrics.RecordToolCall(call.Name, false)
	return out
}

// Definitions returns the tool vocabulary offered to the planner.
func (e *Executor) Definitions() []types.ToolDefinition {
	return definitions(e.opts)
}

func formatError(name string, err error) string {
	return fmt.Sprintf("Error executing %s: %v", name, err)
}
