// Package agent runs the bounded planner loop: it asks the planner for the
// next browser actions, executes them against one session, accumulates what
// they reveal and stops on an answer or an exhausted budget. When the loop
// ends without an answer the collected pages are summarized instead.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/entrhq/forage/pkg/agent/prompts"
	"github.com/entrhq/forage/pkg/agent/tools"
	"github.com/entrhq/forage/pkg/llm"
	"github.com/entrhq/forage/pkg/llm/tokenizer"
	"github.com/entrhq/forage/pkg/metrics"
	browsertools "github.com/entrhq/forage/pkg/tools/browser"
	"github.com/entrhq/forage/pkg/types"
)

// Termination reasons.
const (
	ReasonCompleted     = "completed"
	ReasonTimedOut      = "timed_out"
	ReasonNavTerminated = "nav_terminated"
	ReasonPlannerFailed = "planner_failed"
)

// ToolExecutor runs browser actions for the loop. *browsertools.Executor
// satisfies it.
type ToolExecutor interface {
	Execute(ctx context.Context, sess browsertools.Session, call types.ToolCall, rec browsertools.Recorder) string
	FetchPages(ctx context.Context, sess browsertools.Session, urls []string, rec browsertools.Recorder) []string
	Definitions() []types.ToolDefinition
	Options() browsertools.Options
}

// EventHandler observes loop progress. It is called synchronously.
type EventHandler func(*types.AgentEvent)

// Loop drives one task at a time per Run call. A Loop holds no per-request
// state and may serve concurrent runs.
type Loop struct {
	planner      llm.Planner
	executor     ToolExecutor
	summarizer   *Summarizer
	tokenizer    *tokenizer.Tokenizer
	limits       Limits
	transcript   TranscriptOptions
	instructions string
	onEvent      EventHandler
	logger       *zap.Logger
	metrics      *metrics.Collector
	now          func() time.Time
}

// LoopOption customizes a Loop.
type LoopOption func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(l *zap.Logger) LoopOption {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithMetrics records turns, planner calls and terminations.
func WithMetrics(c *metrics.Collector) LoopOption {
	return func(lp *Loop) { lp.metrics = c }
}

// WithTokenizer enables exact prompt token counts in logs and events.
func WithTokenizer(t *tokenizer.Tokenizer) LoopOption {
	return func(lp *Loop) { lp.tokenizer = t }
}

// WithSummarizer enables the fallback summary on early termination.
func WithSummarizer(s *Summarizer) LoopOption {
	return func(lp *Loop) { lp.summarizer = s }
}

// WithEventHandler registers a progress observer.
func WithEventHandler(h EventHandler) LoopOption {
	return func(lp *Loop) { lp.onEvent = h }
}

// WithLimits sets the accumulator caps.
func WithLimits(l Limits) LoopOption {
	return func(lp *Loop) { lp.limits = l }
}

// WithTranscriptOptions sets the context ceiling.
func WithTranscriptOptions(o TranscriptOptions) LoopOption {
	return func(lp *Loop) { lp.transcript = o }
}

// WithCustomInstructions appends operator instructions to the system prompt.
func WithCustomInstructions(s string) LoopOption {
	return func(lp *Loop) { lp.instructions = s }
}

// WithClock replaces the wall clock used for the time budget.
func WithClock(now func() time.Time) LoopOption {
	return func(lp *Loop) {
		if now != nil {
			lp.now = now
		}
	}
}

// NewLoop creates a loop over planner and executor.
func NewLoop(planner llm.Planner, executor ToolExecutor, opts ...LoopOption) *Loop {
	lp := &Loop{
		planner:    planner,
		executor:   executor,
		limits:     DefaultLimits(),
		transcript: DefaultTranscriptOptions(),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(lp)
	}
	lp.logger = lp.logger.With(zap.String("component", "agent_loop"))
	return lp
}

// run is the state of one Run call.
type run struct {
	task     string
	sess     browsertools.Session
	budgets  Budgets
	acc      *Accumulator
	tr       *Transcript
	start    time.Time
	deadline time.Time
	turn     int
	wrapped  bool
	logger   *zap.Logger
}

// Run executes task in sess until the planner answers or a budget runs out.
// Budgets are checked between turns only; a planner call or action in flight
// is never interrupted by the loop.
func (l *Loop) Run(ctx context.Context, task string, sess browsertools.Session, budgets Budgets) *Result {
	r := &run{
		task:    task,
		sess:    sess,
		budgets: budgets,
		acc:     NewAccumulator(l.limits),
		start:   l.now(),
		logger:  l.logger,
	}
	r.deadline = r.start.Add(budgets.MaxDuration - budgets.FallbackReserve)

	system := prompts.NewPromptBuilder().
		WithCustomInstructions(l.instructions).
		WithDate(r.start).
		Build()
	r.tr = NewTranscript(l.transcript, system, task)

	reason := l.loop(ctx, r)

	l.metrics.RecordTermination(reason)
	l.emit(types.NewTerminatedEvent(r.turn, reason))

	if r.acc.Response() == "" {
		l.fallback(ctx, r)
	}

	duration := l.now().Sub(r.start)
	res := r.acc.ToResult(duration,
		reason == ReasonTimedOut || reason == ReasonPlannerFailed,
		reason == ReasonNavTerminated)

	r.logger.Info("Run finished",
		zap.String("reason", reason),
		zap.Int("turns", r.turn),
		zap.Int("navigations", r.acc.NavigationCount()),
		zap.Int("sources", len(res.Sources)),
		zap.Bool("success", res.Success),
		zap.Bool("partial", res.Partial),
		zap.Duration("duration", duration))
	return res
}

func (l *Loop) loop(ctx context.Context, r *run) string {
	for {
		if reason, stop := l.checkBudgets(ctx, r); stop {
			return reason
		}
		r.turn++
		l.metrics.RecordTurn()
		l.emit(types.NewTurnStartEvent(r.turn))

		final := r.turn == r.budgets.MaxTurns
		l.injectWrapUp(r, final)

		var defs []types.ToolDefinition
		if !final {
			defs = l.executor.Definitions()
		}

		reply, err := l.plan(ctx, r, defs)
		if err != nil {
			r.logger.Warn("planner call failed, ending run", zap.Int("turn", r.turn), zap.Error(err))
			l.emit(types.NewErrorEvent(r.turn, err))
			return ReasonPlannerFailed
		}

		if !reply.HasToolCalls() || final {
			// A final-turn reply that still asks for actions was cut off by
			// the turn budget; its text is kept but marked incomplete.
			cutOff := final && reply.HasToolCalls()
			if cutOff {
				// no vocabulary was offered, so stray calls are not dispatched
				reply = reply.Clone()
				reply.ToolCalls = nil
			}
			r.tr.Append(reply)
			text := strings.TrimSpace(reply.Content)
			if text != "" {
				r.acc.SetResponse(text)
			}
			switch {
			case cutOff, text == "" && final:
				return ReasonTimedOut
			default:
				return ReasonCompleted
			}
		}

		r.tr.Append(reply)
		r.tr.Append(l.dispatch(ctx, r, reply.ToolCalls)...)

		if n := r.tr.Compact(); n > 0 {
			r.logger.Debug("Compacted transcript", zap.Int("messages", n), zap.Int("chars", r.tr.Chars()))
		}
	}
}

// checkBudgets applies the time, navigation and turn limits in that order.
func (l *Loop) checkBudgets(ctx context.Context, r *run) (string, bool) {
	if ctx.Err() != nil {
		r.logger.Info("Context done before turn", zap.Error(ctx.Err()))
		return ReasonTimedOut, true
	}
	if remaining := r.deadline.Sub(l.now()); remaining <= r.budgets.MinTurnTime {
		r.logger.Info("Time budget exhausted", zap.Duration("remaining", remaining))
		return ReasonTimedOut, true
	}
	if n := r.acc.NavigationCount(); n >= r.budgets.MaxNavigations {
		r.logger.Info("Navigation budget exhausted", zap.Int("navigations", n))
		return ReasonNavTerminated, true
	}
	if r.turn >= r.budgets.MaxTurns {
		r.logger.Info("Turn budget exhausted", zap.Int("turns", r.turn))
		return ReasonTimedOut, true
	}
	return "", false
}

// injectWrapUp adds the one-time wrap-up instruction once the run is within
// WrapUpTurns of the cap, and the final-turn instruction on the last turn.
func (l *Loop) injectWrapUp(r *run, final bool) {
	if final && r.budgets.MaxTurns > 1 {
		r.tr.Append(types.NewUserMessage(prompts.FinalTurnPrompt))
		r.wrapped = true
		l.emit(types.NewWrapUpEvent(r.turn, 1))
		return
	}
	if r.wrapped || r.budgets.WrapUpTurns == 0 {
		return
	}
	turnsLeft := r.budgets.MaxTurns - r.turn + 1
	if turnsLeft <= r.budgets.WrapUpTurns {
		r.tr.Append(types.NewUserMessage(prompts.WrapUp(turnsLeft)))
		r.wrapped = true
		l.emit(types.NewWrapUpEvent(r.turn, turnsLeft))
	}
}

func (l *Loop) plan(ctx context.Context, r *run, defs []types.ToolDefinition) (*types.Message, error) {
	messages := r.tr.Messages()
	promptTokens := l.tokenizer.CountMessagesTokens(messages)
	r.logger.Debug("Prompt tokens before send",
		zap.Int("turn", r.turn),
		zap.Int("tokens", promptTokens),
		zap.Int("messages", len(messages)),
		zap.Int("tools", len(defs)))
	l.emit(types.NewAPICallStartEvent(r.turn, promptTokens, len(defs)))

	start := time.Now()
	reply, err := l.planner.Complete(ctx, messages, defs)
	l.metrics.RecordPlannerCall("plan", time.Since(start), err)
	l.emit(types.NewAPICallEndEvent(r.turn, err))
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, llm.ErrNoChoices
	}

	if reply.Usage != nil {
		r.acc.RecordTokenUsage(*reply.Usage)
		l.metrics.RecordUsage(reply.Usage.InputTokens, reply.Usage.OutputTokens, reply.Usage.CacheReadTokens, reply.Usage.CostUSD)
		l.emit(types.NewTokenUsageEvent(r.turn, reply.Usage))
	}
	return reply, nil
}

// dispatch runs one turn's tool calls and returns their tool messages in
// call order. Two or more navigate calls are fetched together in parallel,
// at the position of the first of them.
func (l *Loop) dispatch(ctx context.Context, r *run, calls []types.ToolCall) []*types.Message {
	batch := navigateBatch(calls)
	var batched map[string]string
	if len(batch) < 2 {
		batch = nil
	}

	out := make([]*types.Message, 0, len(calls))
	for _, call := range calls {
		l.emit(types.NewToolCallEvent(r.turn, call.Name, call.Arguments))

		var result string
		if _, ok := batch[call.ID]; ok {
			if batched == nil {
				batched = l.fetchBatch(ctx, r, calls, batch)
			}
			result = batched[call.ID]
		} else {
			result = l.executor.Execute(ctx, r.sess, call, r.acc)
		}

		l.emit(types.NewToolResultEvent(r.turn, call.Name, result))
		out = append(out, types.NewToolMessage(call.ID, call.Name, result))
	}
	return out
}

// navigateBatch maps the ids of navigate calls with a usable url to that url.
func navigateBatch(calls []types.ToolCall) map[string]string {
	batch := make(map[string]string)
	for _, call := range calls {
		if browsertools.ActionKind(call.Name) != browsertools.ActionNavigate || call.ID == "" {
			continue
		}
		var args struct {
			URL string `json:"url"`
		}
		if err := tools.DecodeArguments(call.Arguments, &args); err != nil || strings.TrimSpace(args.URL) == "" {
			continue
		}
		if _, dup := batch[call.ID]; dup {
			continue
		}
		batch[call.ID] = args.URL
	}
	return batch
}

// fetchBatch fetches the batched urls in call order, in groups no larger
// than one fetch allows, and returns each call's segment.
func (l *Loop) fetchBatch(ctx context.Context, r *run, calls []types.ToolCall, batch map[string]string) map[string]string {
	ids := make([]string, 0, len(batch))
	urls := make([]string, 0, len(batch))
	for _, call := range calls {
		if u, ok := batch[call.ID]; ok {
			ids = append(ids, call.ID)
			urls = append(urls, u)
		}
	}

	batchID := uuid.NewString()
	event := types.NewNavigationBatchEvent(r.turn, urls)
	event.Metadata["batch_id"] = batchID
	l.emit(event)
	l.metrics.RecordFanOut("navigate_batch", len(urls))
	r.logger.Debug("Batching navigate calls",
		zap.String("batch_id", batchID),
		zap.Int("urls", len(urls)))

	group := l.executor.Options().FetchMaxURLs
	if group <= 0 {
		group = len(urls)
	}
	segments := make([]string, 0, len(urls))
	for i := 0; i < len(urls); i += group {
		end := min(i+group, len(urls))
		segments = append(segments, l.executor.FetchPages(ctx, r.sess, urls[i:end], r.acc)...)
	}

	note := fmt.Sprintf("These %d navigate calls were loaded in parallel in separate tabs; the current page did not change.\n\n", len(urls))
	results := make(map[string]string, len(ids))
	for i, id := range ids {
		results[id] = note + segments[i]
	}
	return results
}

// fallback summarizes captured content when the loop ended without an answer.
func (l *Loop) fallback(ctx context.Context, r *run) {
	if l.summarizer == nil || !r.acc.HasContent() {
		return
	}
	pages := r.acc.Pages()
	l.emit(types.NewFallbackStartEvent(len(pages)))
	r.logger.Info("Summarizing collected content", zap.Int("pages", len(pages)))

	// the reserve plus whatever the loop left unused
	budget := r.start.Add(r.budgets.MaxDuration).Sub(l.now())
	if budget < r.budgets.FallbackReserve {
		budget = r.budgets.FallbackReserve
	}
	fctx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	text, ok := l.summarizer.Summarize(fctx, r.task, pages, r.acc.URLs(), r.acc)
	if ok {
		r.acc.SetFallbackResponse(text)
	}
	l.emit(types.NewFallbackEndEvent(ok))
}

func (l *Loop) emit(e *types.AgentEvent) {
	if l.onEvent != nil {
		l.onEvent(e)
	}
}
