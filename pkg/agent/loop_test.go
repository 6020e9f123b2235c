package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/entrhq/forage/pkg/agent/prompts"
	"github.com/entrhq/forage/pkg/browser/browsertest"
	browsertools "github.com/entrhq/forage/pkg/tools/browser"
	"github.com/entrhq/forage/pkg/types"
)

func longText(topic string) string {
	return fmt.Sprintf("This page is about %s. It has enough readable text to be kept as captured content.", topic)
}

func loopSite() browsertest.Site {
	site := browsertest.Site{
		"https://a.example/": {Title: "Alpha", Text: longText("alpha")},
		"https://b.example/": {Err: errors.New("net::ERR_CONNECTION_RESET")},
		"https://c.example/": {Title: "Gamma", Text: longText("gamma")},
		"https://d.example/": {Title: "Delta", Text: longText("delta")},
	}
	for i := 0; i < 10; i++ {
		site[fmt.Sprintf("https://p%d.example/", i)] = browsertest.Document{Title: fmt.Sprintf("P%d", i), Text: longText(fmt.Sprintf("page %d", i))}
	}
	return site
}

type turnFunc func(turn int, msgs []*types.Message, tools []types.ToolDefinition) (*types.Message, error)

// scriptedPlanner plays turn for planning calls and answers summarization
// calls with summary.
type scriptedPlanner struct {
	turn       turnFunc
	summary    string
	summaryErr error
	usage      *types.Usage

	mu           sync.Mutex
	planCalls    int
	summaryCalls int
	requests     [][]*types.Message
	tools        [][]types.ToolDefinition
}

func (p *scriptedPlanner) Complete(ctx context.Context, msgs []*types.Message, tools []types.ToolDefinition) (*types.Message, error) {
	p.mu.Lock()
	switch msgs[0].Content {
	case prompts.SynthesisPrompt, prompts.MapPrompt, prompts.ReducePrompt:
		p.summaryCalls++
		p.mu.Unlock()
		if p.summaryErr != nil {
			return nil, p.summaryErr
		}
		return &types.Message{Role: types.RoleAssistant, Content: p.summary, Usage: p.usage}, nil
	}
	p.planCalls++
	turn := p.planCalls
	p.requests = append(p.requests, msgs)
	p.tools = append(p.tools, tools)
	p.mu.Unlock()

	reply, err := p.turn(turn, msgs, tools)
	if reply != nil && p.usage != nil {
		u := *p.usage
		reply.Usage = &u
	}
	return reply, err
}

func calls(cs ...types.ToolCall) *types.Message {
	return &types.Message{Role: types.RoleAssistant, ToolCalls: cs}
}

func navigateCall(id, url string) types.ToolCall {
	return types.ToolCall{ID: id, Name: string(browsertools.ActionNavigate), Arguments: fmt.Sprintf(`{"url":%q}`, url)}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []*types.AgentEvent
}

func (l *eventLog) handle(e *types.AgentEvent) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) ofType(t types.AgentEventType) []*types.AgentEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*types.AgentEvent
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) reason() string {
	terminated := l.ofType(types.EventTypeTerminated)
	if len(terminated) != 1 {
		return ""
	}
	return terminated[0].Content
}

type loopHarness struct {
	planner *scriptedPlanner
	sess    *browsertest.Session
	events  *eventLog
	loop    *Loop
}

func newHarness(t *testing.T, p *scriptedPlanner, opts ...LoopOption) *loopHarness {
	t.Helper()
	h := &loopHarness{
		planner: p,
		sess:    browsertest.NewSession(loopSite()),
		events:  &eventLog{},
	}
	logger := zaptest.NewLogger(t)
	exec := browsertools.NewExecutor(browsertools.DefaultOptions(), browsertools.WithLogger(logger))
	base := []LoopOption{
		WithLogger(logger),
		WithEventHandler(h.events.handle),
		WithSummarizer(NewSummarizer(p, DefaultSummarizerOptions(), logger, nil)),
	}
	h.loop = NewLoop(p, exec, append(base, opts...)...)
	return h
}

func (h *loopHarness) run(budgets Budgets) *Result {
	return h.loop.Run(context.Background(), "Research birds and fish", h.sess, budgets)
}

func TestLoop_ImmediateAnswer(t *testing.T) {
	p := &scriptedPlanner{turn: func(int, []*types.Message, []types.ToolDefinition) (*types.Message, error) {
		return types.NewAssistantMessage("The answer is 42."), nil
	}}
	h := newHarness(t, p)

	res := h.run(DefaultBudgets())

	assert.True(t, res.Success)
	assert.False(t, res.Partial)
	assert.Equal(t, "The answer is 42.", res.Response)
	assert.Equal(t, 1, p.planCalls)
	assert.Zero(t, p.summaryCalls)
	assert.NotEmpty(t, p.tools[0])
	assert.Equal(t, ReasonCompleted, h.events.reason())

	first := p.requests[0]
	require.Len(t, first, 2)
	assert.Equal(t, types.RoleSystem, first[0].Role)
	assert.Equal(t, "Research birds and fish", first[1].Content)
}

func TestLoop_PlannerFailsOnFirstCall(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedPlanner{turn: func(int, []*types.Message, []types.ToolDefinition) (*types.Message, error) {
		clock.Advance(1500 * time.Millisecond)
		return nil, fmt.Errorf("chat completion failed: %w", context.DeadlineExceeded)
	}}
	h := newHarness(t, p, WithClock(clock.Now))

	res := h.run(DefaultBudgets())

	assert.False(t, res.Success)
	assert.False(t, res.Partial)
	assert.Equal(t, 1.5, res.DurationSeconds)
	assert.Equal(t, 1, p.planCalls)
	assert.Zero(t, p.summaryCalls)
	assert.Equal(t, ReasonPlannerFailed, h.events.reason())
	assert.Len(t, h.events.ofType(types.EventTypeError), 1)
}

// collectThenStall navigates a, then c and d together, then returns nothing
// on the final turn.
func collectThenStall(turn int, _ []*types.Message, tools []types.ToolDefinition) (*types.Message, error) {
	switch turn {
	case 1:
		return calls(navigateCall("n1", "https://a.example/")), nil
	case 2:
		return calls(navigateCall("n2", "https://c.example/"), navigateCall("n3", "https://d.example/")), nil
	default:
		return calls(navigateCall("n4", "https://p0.example/")), nil
	}
}

func turnLimited() Budgets {
	b := DefaultBudgets()
	b.MaxTurns = 3
	b.WrapUpTurns = 1
	return b
}

func TestLoop_TurnLimitWithContentIsSummarized(t *testing.T) {
	p := &scriptedPlanner{turn: collectThenStall, summary: "Birds fly and fish swim."}
	h := newHarness(t, p)

	res := h.run(turnLimited())

	assert.True(t, res.Success)
	assert.True(t, res.Partial)
	assert.Contains(t, res.Response, "Birds fly and fish swim.")
	assert.Contains(t, res.Response, "auto-generated from collected content")
	assert.Equal(t, []string{"https://a.example/", "https://c.example/", "https://d.example/"}, res.Sources)

	assert.Equal(t, 3, p.planCalls)
	assert.Nil(t, p.tools[2])
	assert.Equal(t, 1, p.summaryCalls)
	assert.Equal(t, ReasonTimedOut, h.events.reason())
	assert.Len(t, h.events.ofType(types.EventTypeFallbackStart), 1)
	fallbackEnd := h.events.ofType(types.EventTypeFallbackEnd)
	require.Len(t, fallbackEnd, 1)
	assert.Equal(t, true, fallbackEnd[0].Metadata["ok"])
}

func TestLoop_TurnLimitFallsBackToSourceList(t *testing.T) {
	p := &scriptedPlanner{turn: collectThenStall, summaryErr: errors.New("planner down")}
	h := newHarness(t, p)

	res := h.run(turnLimited())

	assert.True(t, res.Success)
	assert.True(t, res.Partial)
	assert.Contains(t, res.Response, "- https://a.example/")
	assert.Contains(t, res.Response, "- https://d.example/")
	assert.Equal(t, 1, p.summaryCalls)
}

func TestLoop_NavigationCapStopsPlanning(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 8).Draw(t, "max_navigations")

		p := &scriptedPlanner{turn: func(turn int, _ []*types.Message, _ []types.ToolDefinition) (*types.Message, error) {
			return calls(navigateCall(fmt.Sprintf("n%d", turn), fmt.Sprintf("https://p%d.example/", turn%10))), nil
		}}
		events := &eventLog{}
		exec := browsertools.NewExecutor(browsertools.DefaultOptions())
		loop := NewLoop(p, exec, WithEventHandler(events.handle))

		budgets := DefaultBudgets()
		budgets.MaxTurns = 50
		budgets.MaxNavigations = limit
		res := loop.Run(context.Background(), "task", browsertest.NewSession(loopSite()), budgets)

		if p.planCalls != limit {
			t.Fatalf("planner called %d times with a navigation cap of %d", p.planCalls, limit)
		}
		if got := events.reason(); got != ReasonNavTerminated {
			t.Fatalf("terminated with %q", got)
		}
		if !res.Partial {
			t.Fatalf("result not partial: %+v", res)
		}
	})
}

func TestLoop_BatchesNavigateCalls(t *testing.T) {
	p := &scriptedPlanner{turn: func(turn int, _ []*types.Message, _ []types.ToolDefinition) (*types.Message, error) {
		if turn == 1 {
			return calls(
				navigateCall("n1", "https://a.example/"),
				types.ToolCall{ID: "bad", Name: "navigate", Arguments: `{"url":`},
				navigateCall("n2", "https://b.example/"),
				navigateCall("n3", "https://c.example/"),
			), nil
		}
		return types.NewAssistantMessage("done"), nil
	}}
	h := newHarness(t, p)

	res := h.run(DefaultBudgets())
	require.True(t, res.Success)
	assert.Equal(t, []string{"https://a.example/", "https://c.example/"}, res.Sources)

	second := p.requests[1]
	toolMsgs := second[3:]
	require.Len(t, toolMsgs, 4)
	ids := []string{toolMsgs[0].ToolCallID, toolMsgs[1].ToolCallID, toolMsgs[2].ToolCallID, toolMsgs[3].ToolCallID}
	assert.Equal(t, []string{"n1", "bad", "n2", "n3"}, ids)

	assert.Contains(t, toolMsgs[0].Content, "loaded in parallel")
	assert.Contains(t, toolMsgs[0].Content, "Title: Alpha")
	assert.Contains(t, toolMsgs[1].Content, "Error executing navigate")
	assert.Contains(t, toolMsgs[2].Content, "Error fetching https://b.example/")
	assert.Contains(t, toolMsgs[3].Content, "Title: Gamma")

	assert.Len(t, h.sess.Siblings(), 3)
	assert.NotContains(t, h.sess.Main.Calls(), "navigate")

	batches := h.events.ofType(types.EventTypeNavigationBatch)
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"https://a.example/", "https://b.example/", "https://c.example/"}, batches[0].Metadata["urls"])
	assert.NotEmpty(t, batches[0].Metadata["batch_id"])
	assert.Len(t, h.events.ofType(types.EventTypeToolResult), 4)
}

func TestLoop_SingleNavigateUsesMainPage(t *testing.T) {
	p := &scriptedPlanner{turn: func(turn int, _ []*types.Message, _ []types.ToolDefinition) (*types.Message, error) {
		if turn == 1 {
			return calls(navigateCall("n1", "https://a.example/")), nil
		}
		return types.NewAssistantMessage("done"), nil
	}}
	h := newHarness(t, p)

	h.run(DefaultBudgets())
	assert.Empty(t, h.sess.Siblings())
	assert.Contains(t, h.sess.Main.Calls(), "navigate")
	assert.Empty(t, h.events.ofType(types.EventTypeNavigationBatch))
}

func TestLoop_LargeBatchIsSplitIntoFetches(t *testing.T) {
	p := &scriptedPlanner{turn: func(turn int, _ []*types.Message, _ []types.ToolDefinition) (*types.Message, error) {
		if turn == 1 {
			var cs []types.ToolCall
			for i := 0; i < 7; i++ {
				cs = append(cs, navigateCall(fmt.Sprintf("n%d", i), fmt.Sprintf("https://p%d.example/", i)))
			}
			return calls(cs...), nil
		}
		return types.NewAssistantMessage("done"), nil
	}}
	h := newHarness(t, p)

	res := h.run(DefaultBudgets())
	assert.Len(t, res.Sources, 7)
	assert.Len(t, h.sess.Siblings(), 7)

	toolMsgs := p.requests[1][3:]
	require.Len(t, toolMsgs, 7)
	for i, m := range toolMsgs {
		assert.Contains(t, m.Content, fmt.Sprintf("Title: P%d", i))
		assert.NotContains(t, m.Content, "Skipped")
	}
}

func TestLoop_WrapUpAndFinalTurn(t *testing.T) {
	p := &scriptedPlanner{turn: func(turn int, _ []*types.Message, tools []types.ToolDefinition) (*types.Message, error) {
		if tools == nil {
			return types.NewAssistantMessage("final answer"), nil
		}
		return calls(navigateCall(fmt.Sprintf("n%d", turn), "https://a.example/")), nil
	}}
	h := newHarness(t, p)

	budgets := DefaultBudgets()
	budgets.MaxTurns = 4
	budgets.WrapUpTurns = 2
	res := h.run(budgets)

	assert.True(t, res.Success)
	assert.False(t, res.Partial)
	assert.Equal(t, "final answer", res.Response)
	require.Equal(t, 4, p.planCalls)

	lastOf := func(i int) *types.Message { return p.requests[i][len(p.requests[i])-1] }
	assert.Equal(t, types.RoleTool, lastOf(1).Role)
	assert.Equal(t, prompts.WrapUp(2), lastOf(2).Content)
	assert.Equal(t, prompts.FinalTurnPrompt, lastOf(3).Content)
	assert.NotNil(t, p.tools[2])
	assert.Nil(t, p.tools[3])

	wrapUps := h.events.ofType(types.EventTypeWrapUp)
	require.Len(t, wrapUps, 2)
	assert.Equal(t, 3, wrapUps[0].Turn)
	assert.Equal(t, 4, wrapUps[1].Turn)
}

func TestLoop_FinalTurnIgnoresStrayToolCalls(t *testing.T) {
	p := &scriptedPlanner{turn: func(turn int, _ []*types.Message, tools []types.ToolDefinition) (*types.Message, error) {
		return calls(navigateCall(fmt.Sprintf("n%d", turn), "https://a.example/")), nil
	}, summary: "From alpha."}
	h := newHarness(t, p)

	budgets := DefaultBudgets()
	budgets.MaxTurns = 2
	res := h.run(budgets)

	assert.Equal(t, 2, p.planCalls)
	assert.Equal(t, 1, countOf(h.sess.Main.Calls(), "navigate"))
	assert.Equal(t, ReasonTimedOut, h.events.reason())
	assert.Contains(t, res.Response, "From alpha.")
}

func TestLoop_FinalTurnCutOffIsIncomplete(t *testing.T) {
	p := &scriptedPlanner{turn: func(turn int, _ []*types.Message, _ []types.ToolDefinition) (*types.Message, error) {
		reply := calls(navigateCall(fmt.Sprintf("n%d", turn), "https://a.example/"))
		reply.Content = "Partial finding: alpha is relevant."
		return reply, nil
	}, summary: "From alpha."}
	h := newHarness(t, p)

	budgets := DefaultBudgets()
	budgets.MaxTurns = 2
	res := h.run(budgets)

	assert.Equal(t, 2, p.planCalls)
	assert.Zero(t, p.summaryCalls, "the planner's own text is kept")
	assert.Equal(t, ReasonTimedOut, h.events.reason())
	assert.True(t, res.Success)
	assert.True(t, res.Partial)
	assert.True(t, strings.HasPrefix(res.Response, "Partial finding: alpha is relevant."))
	assert.Contains(t, res.Response, incompleteNote)
	assert.Equal(t, 1, countOf(h.sess.Main.Calls(), "navigate"))
}

func countOf(items []string, want string) int {
	n := 0
	for _, s := range items {
		if s == want {
			n++
		}
	}
	return n
}

func TestLoop_TimeBudget(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedPlanner{turn: func(turn int, _ []*types.Message, _ []types.ToolDefinition) (*types.Message, error) {
		clock.Advance(3 * time.Minute)
		return calls(navigateCall(fmt.Sprintf("n%d", turn), fmt.Sprintf("https://p%d.example/", turn))), nil
	}, summaryErr: errors.New("no summary")}
	h := newHarness(t, p, WithClock(clock.Now))

	res := h.run(DefaultBudgets())

	// the deadline is 4m15s after start; the third check sees 6m elapsed
	assert.Equal(t, 2, p.planCalls)
	assert.Equal(t, ReasonTimedOut, h.events.reason())
	assert.True(t, res.Success)
	assert.True(t, res.Partial)
	assert.Equal(t, 360.0, res.DurationSeconds)
}

func TestLoop_MinTurnTime(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedPlanner{turn: func(int, []*types.Message, []types.ToolDefinition) (*types.Message, error) {
		return types.NewAssistantMessage("never"), nil
	}}
	h := newHarness(t, p, WithClock(clock.Now))

	budgets := DefaultBudgets()
	budgets.MaxDuration = time.Minute
	budgets.FallbackReserve = 50 * time.Second
	budgets.MinTurnTime = 10 * time.Second
	res := h.run(budgets)

	assert.Zero(t, p.planCalls)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonTimedOut, h.events.reason())
}

func TestLoop_CancelledContext(t *testing.T) {
	p := &scriptedPlanner{turn: func(int, []*types.Message, []types.ToolDefinition) (*types.Message, error) {
		return types.NewAssistantMessage("never"), nil
	}}
	h := newHarness(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := h.loop.Run(ctx, "task", h.sess, DefaultBudgets())

	assert.Zero(t, p.planCalls)
	assert.False(t, res.Success)
	assert.False(t, res.Partial)
}

func TestLoop_EmptyReplyRunsFallback(t *testing.T) {
	p := &scriptedPlanner{turn: func(turn int, _ []*types.Message, _ []types.ToolDefinition) (*types.Message, error) {
		if turn == 1 {
			return calls(navigateCall("n1", "https://a.example/")), nil
		}
		return types.NewAssistantMessage("   "), nil
	}, summary: "Alpha summary."}
	h := newHarness(t, p)

	res := h.run(DefaultBudgets())

	assert.Equal(t, ReasonCompleted, h.events.reason())
	assert.Equal(t, 1, p.summaryCalls)
	assert.True(t, res.Partial)
	assert.Contains(t, res.Response, "Alpha summary.")
}

func TestLoop_AccumulatesUsage(t *testing.T) {
	p := &scriptedPlanner{
		turn:    collectThenStall,
		summary: "Summary.",
		usage:   &types.Usage{InputTokens: 100, OutputTokens: 10, CacheReadTokens: 20, CostUSD: 0.001},
	}
	h := newHarness(t, p)

	res := h.run(turnLimited())

	require.NotNil(t, res.TokenUsage)
	// three planning calls plus one synthesis call
	assert.Equal(t, 400, res.TokenUsage.Input)
	assert.Equal(t, 40, res.TokenUsage.Output)
	assert.Equal(t, 440, res.TokenUsage.Total)
	assert.Equal(t, 80, res.TokenUsage.CacheRead)
	assert.InDelta(t, 0.004, res.CostUSD, 1e-9)
	assert.Len(t, h.events.ofType(types.EventTypeTokenUsage), 3)
}

func TestLoop_CustomInstructions(t *testing.T) {
	p := &scriptedPlanner{turn: func(int, []*types.Message, []types.ToolDefinition) (*types.Message, error) {
		return types.NewAssistantMessage("ok"), nil
	}}
	h := newHarness(t, p, WithCustomInstructions("Prefer primary sources."))

	h.run(DefaultBudgets())
	assert.True(t, strings.Contains(p.requests[0][0].Content, "Prefer primary sources."))
}
