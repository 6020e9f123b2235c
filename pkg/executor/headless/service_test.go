package headless

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/entrhq/forage/pkg/agent"
	"github.com/entrhq/forage/pkg/browser"
	"github.com/entrhq/forage/pkg/browser/browsertest"
	"github.com/entrhq/forage/pkg/llm"
	browsertools "github.com/entrhq/forage/pkg/tools/browser"
	"github.com/entrhq/forage/pkg/types"
)

var site = browsertest.Site{
	"https://a.example/": {Title: "Alpha", Text: "Alpha has plenty of readable text for the accumulator to keep."},
}

// navigateThenAnswer opens a.example on the first turn and answers on the second.
func navigateThenAnswer(calls *atomic.Int32) llm.Planner {
	return llm.PlannerFunc(func(ctx context.Context, msgs []*types.Message, tools []types.ToolDefinition) (*types.Message, error) {
		if calls.Add(1) == 1 {
			return &types.Message{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{
				{ID: "c1", Name: "navigate", Arguments: `{"url":"https://a.example/"}`},
			}}, nil
		}
		return types.NewAssistantMessage("Alpha is a page."), nil
	})
}

func newService(t *testing.T, engine *browsertest.Engine, planner llm.Planner, opts ...Option) *Service {
	t.Helper()
	logger := zaptest.NewLogger(t)
	pool := browser.NewPool(engine, 1, logger, nil)
	exec := browsertools.NewExecutor(browsertools.DefaultOptions(), browsertools.WithLogger(logger))
	loop := agent.NewLoop(planner, exec, agent.WithLogger(logger))

	svc, err := New(pool, loop, agent.DefaultBudgets(), append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown() })
	return svc
}

func TestService_Run(t *testing.T) {
	var calls atomic.Int32
	engine := browsertest.NewEngine(site)
	svc := newService(t, engine, navigateThenAnswer(&calls))

	res, err := svc.Run(context.Background(), "  What is alpha?  ")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Partial)
	assert.Equal(t, "Alpha is a page.", res.Response)
	assert.Equal(t, []string{"https://a.example/"}, res.Sources)
	assert.Equal(t, int32(2), calls.Load())

	// the session is closed and its permit returned
	pages := engine.Latest().Pages()
	require.Len(t, pages, 1)
	assert.True(t, pages[0].Closed())

	res, err = svc.Run(context.Background(), "again")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestService_RejectsEmptyTask(t *testing.T) {
	var calls atomic.Int32
	svc := newService(t, browsertest.NewEngine(site), navigateThenAnswer(&calls))

	_, err := svc.Run(context.Background(), "   ")
	assert.Error(t, err)
	assert.Zero(t, calls.Load())
}

func TestService_LaunchFailureIsAnError(t *testing.T) {
	var calls atomic.Int32
	engine := browsertest.NewEngine(site)
	engine.LaunchErr = errors.New("chromium missing")
	svc := newService(t, engine, navigateThenAnswer(&calls))

	res, err := svc.Run(context.Background(), "task")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "chromium missing")
	assert.Zero(t, calls.Load())
}

func TestService_AdmissionHonorsContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	planner := llm.PlannerFunc(func(ctx context.Context, msgs []*types.Message, tools []types.ToolDefinition) (*types.Message, error) {
		close(started)
		<-release
		return types.NewAssistantMessage("done"), nil
	})
	svc := newService(t, browsertest.NewEngine(site), planner)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Run(context.Background(), "holds the only session")
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := svc.Run(ctx, "waits")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}

func TestService_PlannerFailureIsAResult(t *testing.T) {
	planner := llm.PlannerFunc(func(ctx context.Context, msgs []*types.Message, tools []types.ToolDefinition) (*types.Message, error) {
		return nil, errors.New("chat completion failed: 503")
	})
	svc := newService(t, browsertest.NewEngine(site), planner)

	res, err := svc.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.False(t, res.Partial)
}

func TestService_WritesArtifacts(t *testing.T) {
	var calls atomic.Int32
	dir := t.TempDir()
	cfg := ArtifactConfig{Enabled: true, OutputDir: dir, JSON: true, Markdown: true}
	svc := newService(t, browsertest.NewEngine(site), navigateThenAnswer(&calls), WithArtifacts(cfg))

	_, err := svc.Run(context.Background(), "What is alpha?")
	require.NoError(t, err)

	jsonFiles, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	require.Len(t, jsonFiles, 1)
	mdFiles, err := filepath.Glob(filepath.Join(dir, "*.md"))
	require.NoError(t, err)
	require.Len(t, mdFiles, 1)

	data, err := os.ReadFile(jsonFiles[0])
	require.NoError(t, err)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "What is alpha?", rec["task"])
	assert.NotEmpty(t, rec["request_id"])
	result := rec["result"].(map[string]interface{})
	assert.Equal(t, true, result["success"])
	assert.Equal(t, false, result["partial"])
	assert.Equal(t, "Alpha is a page.", result["response"])
	assert.Contains(t, result, "duration_seconds")
	assert.Contains(t, result, "sources")
}

func TestNew_Validates(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pool := browser.NewPool(browsertest.NewEngine(site), 1, logger, nil)
	loop := agent.NewLoop(llm.PlannerFunc(nil), browsertools.NewExecutor(browsertools.DefaultOptions()))

	_, err := New(nil, loop, agent.DefaultBudgets())
	assert.Error(t, err)

	bad := agent.DefaultBudgets()
	bad.MaxTurns = 0
	_, err = New(pool, loop, bad)
	assert.Error(t, err)

	_, err = New(pool, loop, agent.DefaultBudgets())
	assert.NoError(t, err)
}
