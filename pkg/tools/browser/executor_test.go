package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/entrhq/forage/pkg/browser/browsertest"
	"github.com/entrhq/forage/pkg/types"
)

type recorded struct {
	url  string
	text string
}

type fakeRecorder struct {
	mu    sync.Mutex
	navs  []string
	urls  []string
	pages []recorded
}

func (r *fakeRecorder) RecordNavigation(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navs = append(r.navs, url)
	return true
}

func (r *fakeRecorder) RecordURL(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
	return true
}

func (r *fakeRecorder) RecordPageContent(url, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, recorded{url: url, text: text})
	return true
}

type fakeAnalyzer struct {
	reply string
	err   error
	got   []byte
}

func (a *fakeAnalyzer) AnalyzeImage(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	a.got = image
	return a.reply, a.err
}

var testSite = browsertest.Site{
	"https://a.example/": {Title: "Alpha", Text: "Alpha body text about birds."},
	"https://b.example/": {Err: errors.New("net::ERR_CONNECTION_RESET")},
	"https://c.example/": {Title: "Gamma", Text: "Gamma body text about fish."},
	"https://d.example/": {Title: "Delta", Text: "Delta body."},
	"https://e.example/": {Title: "Epsilon", Text: "Epsilon body."},
	"https://f.example/": {Title: "Phi", Text: "Phi body."},
	"https://forbidden.example/": {
		Title:  "Forbidden",
		Text:   "nope",
		Status: 403,
	},
	"https://challenge.example/": {Title: "Just a moment...", Text: "Checking your browser before accessing the site."},
	"https://redirect.example/":  {Title: "Final", Text: "Moved here.", FinalURL: "https://final.example/"},
	"https://final.example/":     {Title: "Final", Text: "Moved here."},
	"https://slow.example/":      {Title: "Slow", Text: "Late.", Delay: time.Second},
}

func newTestExecutor(t *testing.T, opts Options, options ...ExecutorOption) *Executor {
	t.Helper()
	options = append([]ExecutorOption{WithLogger(zaptest.NewLogger(t))}, options...)
	return NewExecutor(opts, options...)
}

func call(name, args string) types.ToolCall {
	return types.ToolCall{ID: "call_" + name, Name: name, Arguments: args}
}

func TestExecute_Navigate(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	rec := &fakeRecorder{}

	out := e.Execute(context.Background(), sess, call("navigate", `{"url":"https://a.example/"}`), rec)

	assert.Contains(t, out, "Navigation successful")
	assert.Contains(t, out, "Title: Alpha")
	assert.Contains(t, out, "Alpha body text")
	assert.Equal(t, []string{"https://a.example/"}, rec.navs)
	assert.Equal(t, []string{"https://a.example/"}, rec.urls)
	require.Len(t, rec.pages, 1)
	assert.Equal(t, "Alpha body text about birds.", rec.pages[0].text)
}

func TestExecute_NavigateAddsScheme(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	rec := &fakeRecorder{}

	out := e.Execute(context.Background(), sess, call("navigate", `{"url":"a.example/"}`), rec)

	assert.Contains(t, out, "Navigation successful")
	assert.Equal(t, []string{"https://a.example/"}, rec.navs)
}

func TestExecute_NavigateRecordsFinalURL(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	rec := &fakeRecorder{}

	out := e.Execute(context.Background(), sess, call("navigate", `{"url":"https://redirect.example/"}`), rec)

	assert.Contains(t, out, "URL: https://final.example/")
	assert.Equal(t, []string{"https://redirect.example/"}, rec.navs)
	assert.Equal(t, []string{"https://final.example/"}, rec.urls)
}

func TestExecute_FailuresBecomeText(t *testing.T) {
	tests := []struct {
		name string
		call types.ToolCall
		want string
	}{
		{
			name: "unknown action",
			call: call("evaluate", `{}`),
			want: "Error executing evaluate: unknown action (available: navigate, fetch_pages, snapshot",
		},
		{
			name: "malformed arguments",
			call: call("navigate", `{"url": `),
			want: "Error executing navigate: invalid arguments",
		},
		{
			name: "missing url",
			call: call("navigate", `{}`),
			want: "Error executing navigate: url is required",
		},
		{
			name: "unsupported scheme",
			call: call("navigate", `{"url":"file:///etc/passwd"}`),
			want: "Error executing navigate: unsupported url scheme \"file\"",
		},
		{
			name: "unresolvable host",
			call: call("navigate", `{"url":"https://nowhere.example/"}`),
			want: "Error executing navigate: net::ERR_NAME_NOT_RESOLVED",
		},
		{
			name: "click without role",
			call: call("click", `{"name":"Submit"}`),
			want: "Error executing click: role is required",
		},
		{
			name: "negative index",
			call: call("select_option", `{"role":"combobox","name":"Size","value":"L","index":-1}`),
			want: "Error executing select_option: index cannot be negative",
		},
		{
			name: "empty form",
			call: call("fill_form", `{"fields":[]}`),
			want: "Error executing fill_form: at least one field is required",
		},
		{
			name: "empty key",
			call: call("press_key", `{"key":"  "}`),
			want: "Error executing press_key: key is required",
		},
		{
			name: "non-positive wait",
			call: call("wait_for", `{"timeout_seconds":0}`),
			want: "Error executing wait_for: timeout_seconds must be positive",
		},
		{
			name: "go back without history",
			call: call("go_back", ``),
			want: "Error executing go_back: no history",
		},
		{
			name: "empty fetch",
			call: call("fetch_pages", `{"urls":[]}`),
			want: "Error executing fetch_pages: at least one url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(t, DefaultOptions())
			out := e.Execute(context.Background(), browsertest.NewSession(testSite), tt.call, &fakeRecorder{})
			assert.True(t, strings.HasPrefix(out, tt.want), "got %q", out)
		})
	}
}

func TestExecute_RecoversPanics(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	sess.Main.PanicOn = "click"

	out := e.Execute(context.Background(), sess, call("click", `{"role":"button","name":"Go"}`), &fakeRecorder{})

	assert.Equal(t, "Error executing click: panic: click exploded", out)
}

func TestExecute_ActionTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.ActionTimeout = 20 * time.Millisecond
	opts.NavigationTimeout = 20 * time.Millisecond
	e := newTestExecutor(t, opts)

	start := time.Now()
	out := e.Execute(context.Background(), browsertest.NewSession(testSite), call("navigate", `{"url":"https://slow.example/"}`), &fakeRecorder{})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Contains(t, out, "Error executing navigate: timed out after 40ms")
}

func TestExecute_NilRecorder(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	out := e.Execute(context.Background(), browsertest.NewSession(testSite), call("navigate", `{"url":"https://a.example/"}`), nil)
	assert.Contains(t, out, "Navigation successful")
}

func TestExecute_BlockedPages(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		reason string
	}{
		{name: "forbidden status", url: "https://forbidden.example/", reason: "HTTP 403 Forbidden"},
		{name: "challenge title", url: "https://challenge.example/", reason: "challenge page title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(t, DefaultOptions())
			rec := &fakeRecorder{}

			out := e.Execute(context.Background(), browsertest.NewSession(testSite), call("navigate", `{"url":"`+tt.url+`"}`), rec)

			assert.True(t, strings.HasPrefix(out, "WARNING: access to "+tt.url+" is blocked"), "got %q", out)
			assert.Contains(t, out, tt.reason)
			assert.Contains(t, out, "Do not retry")
			assert.Equal(t, []string{tt.url}, rec.navs, "the attempt still counts as a navigation")
			assert.Empty(t, rec.urls)
			assert.Empty(t, rec.pages)
		})
	}
}

func TestExecute_Snapshot(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	rec := &fakeRecorder{}
	ctx := context.Background()

	e.Execute(ctx, sess, call("navigate", `{"url":"https://c.example/"}`), &fakeRecorder{})
	out := e.Execute(ctx, sess, call("snapshot", ``), rec)

	assert.True(t, strings.HasPrefix(out, "Page snapshot"), "got %q", out)
	assert.Contains(t, out, `heading "Gamma"`)
	require.Len(t, rec.pages, 1)
	assert.Equal(t, "https://c.example/", rec.pages[0].url)
	assert.Equal(t, []string{"https://c.example/"}, rec.urls)
}

func TestExecute_SnapshotTruncates(t *testing.T) {
	opts := DefaultOptions()
	opts.SnapshotChars = 10
	e := newTestExecutor(t, opts)
	site := browsertest.Site{"https://long.example/": {Title: "Long", Snapshot: strings.Repeat("x", 50), Text: "body"}}
	sess := browsertest.NewSession(site)
	ctx := context.Background()

	e.Execute(ctx, sess, call("navigate", `{"url":"https://long.example/"}`), nil)
	out := e.Execute(ctx, sess, call("snapshot", ``), nil)

	assert.Contains(t, out, "[... truncated, 10 of 50 characters shown]")
}

func TestExecute_ClickThatNavigates(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	ctx := context.Background()
	e.Execute(ctx, sess, call("navigate", `{"url":"https://a.example/"}`), nil)

	sess.Main.ClickNavigatesTo = "https://c.example/"
	rec := &fakeRecorder{}
	out := e.Execute(ctx, sess, call("click", `{"role":"Link","name":"Gamma"}`), rec)

	assert.Contains(t, out, `Clicked link "Gamma"`)
	assert.Contains(t, out, "The page navigated.")
	assert.Contains(t, out, "Title: Gamma")
	assert.Equal(t, []string{"https://c.example/"}, rec.navs)
	assert.Equal(t, []string{"https://c.example/"}, rec.urls)
}

func TestExecute_ClickInPlace(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	rec := &fakeRecorder{}

	out := e.Execute(context.Background(), sess, call("click", `{"role":"button","name":"More","index":2}`), rec)

	assert.Contains(t, out, `Clicked button "More" (match 2)`)
	assert.Contains(t, out, "did not change")
	assert.Empty(t, rec.navs)
}

func TestExecute_ClickError(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	sess.Main.ClickErr = errors.New("element not found")

	out := e.Execute(context.Background(), sess, call("click", `{"role":"button","name":"Gone"}`), nil)

	assert.Equal(t, "Error executing click: element not found", out)
}

func TestExecute_FormActions(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	ctx := context.Background()

	out := e.Execute(ctx, sess, call("type_text", `{"role":"textbox","name":"Search","text":"héron","submit":true}`), nil)
	assert.Contains(t, out, `Typed 5 characters into textbox "Search" and pressed Enter`)
	assert.Equal(t, []string{"héron"}, sess.Main.Typed())

	out = e.Execute(ctx, sess, call("select_option", `{"role":"combobox","name":"Sort","value":"newest"}`), nil)
	assert.Contains(t, out, `Selected "newest" in combobox "Sort"`)

	out = e.Execute(ctx, sess, call("fill_form", `{"fields":[{"role":"TextBox","name":"First","value":"Ada"},{"role":"textbox","name":"Last","value":"Lovelace"}]}`), nil)
	assert.Contains(t, out, "Filled 2 field(s)")
	filled := sess.Main.Filled()
	require.Len(t, filled, 2)
	assert.Equal(t, "textbox", filled[0].Role)
	assert.Equal(t, "Lovelace", filled[1].Value)

	out = e.Execute(ctx, sess, call("press_key", `{"key":"Escape"}`), nil)
	assert.Contains(t, out, "Pressed Escape")
}

func TestExecute_WaitFor(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	ctx := context.Background()

	out := e.Execute(ctx, sess, call("wait_for", `{"text":"Results","timeout_seconds":500}`), nil)
	assert.Contains(t, out, `Text "Results" is now visible`)

	out = e.Execute(ctx, sess, call("wait_for", ``), nil)
	assert.Contains(t, out, "Page settled")

	sess.Main.WaitErr = errors.New("waiting for text timed out")
	out = e.Execute(ctx, sess, call("wait_for", `{"text":"Never"}`), nil)
	assert.Equal(t, "Error executing wait_for: waiting for text timed out", out)
}

func TestExecute_GoBack(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	ctx := context.Background()

	e.Execute(ctx, sess, call("navigate", `{"url":"https://a.example/"}`), nil)
	e.Execute(ctx, sess, call("navigate", `{"url":"https://c.example/"}`), nil)
	out := e.Execute(ctx, sess, call("go_back", `{}`), nil)

	assert.Contains(t, out, "URL: https://a.example/")
	assert.Contains(t, out, "Title: Alpha")
}

func TestExecute_Screenshot(t *testing.T) {
	t.Run("without analyzer", func(t *testing.T) {
		e := newTestExecutor(t, DefaultOptions())
		out := e.Execute(context.Background(), browsertest.NewSession(testSite), call("take_screenshot", `{}`), nil)
		assert.Contains(t, out, "Screenshot captured (3 bytes)")
		assert.Contains(t, out, "Visual analysis is not available")
	})

	t.Run("with analyzer", func(t *testing.T) {
		a := &fakeAnalyzer{reply: "  A search results page with ten links.  "}
		e := newTestExecutor(t, DefaultOptions(), WithAnalyzer(a))
		sess := browsertest.NewSession(testSite)

		out := e.Execute(context.Background(), sess, call("take_screenshot", `{"full_page":true}`), nil)

		assert.Contains(t, out, "Visual analysis:\nA search results page with ten links.")
		assert.Equal(t, sess.Main.ScreenshotData, a.got)
	})

	t.Run("analyzer failure is reported not raised", func(t *testing.T) {
		a := &fakeAnalyzer{err: errors.New("vision unavailable")}
		e := newTestExecutor(t, DefaultOptions(), WithAnalyzer(a))

		out := e.Execute(context.Background(), browsertest.NewSession(testSite), call("take_screenshot", `{}`), nil)

		assert.True(t, strings.HasPrefix(out, "Screenshot captured"), "got %q", out)
		assert.Contains(t, out, "Visual analysis failed: vision unavailable")
	})

	t.Run("capture failure", func(t *testing.T) {
		e := newTestExecutor(t, DefaultOptions())
		sess := browsertest.NewSession(testSite)
		sess.Main.ScreenshotErr = errors.New("target closed")

		out := e.Execute(context.Background(), sess, call("take_screenshot", `{}`), nil)
		assert.Equal(t, "Error executing take_screenshot: target closed", out)
	})
}

func TestFetchPages_PartialFailureKeepsOrder(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	rec := &fakeRecorder{}

	out := e.Execute(context.Background(), sess,
		call("fetch_pages", `{"urls":["https://a.example/","https://b.example/","https://c.example/"]}`), rec)

	ia := strings.Index(out, "=== [1/3] https://a.example/ ===")
	ib := strings.Index(out, "=== [2/3] https://b.example/ ===")
	ic := strings.Index(out, "=== [3/3] https://c.example/ ===")
	require.True(t, ia >= 0 && ib > ia && ic > ib, "segments out of order: %q", out)

	assert.Contains(t, out, "Alpha body text about birds.")
	assert.Contains(t, out, "Error fetching https://b.example/: net::ERR_CONNECTION_RESET")
	assert.Contains(t, out, "Gamma body text about fish.")

	assert.Equal(t, []string{"https://a.example/", "https://b.example/", "https://c.example/"}, rec.navs)
	assert.Equal(t, []string{"https://a.example/", "https://c.example/"}, rec.urls)
	require.Len(t, rec.pages, 2)
	assert.Equal(t, "https://a.example/", rec.pages[0].url)
	assert.Equal(t, "https://c.example/", rec.pages[1].url)

	siblings := sess.Siblings()
	assert.Len(t, siblings, 3)
	for _, p := range siblings {
		assert.True(t, p.Closed(), "every fetch page is closed")
	}
	assert.Equal(t, "about:blank", sess.Main.URL(), "the main page is untouched")
}

func TestFetchPages_SegmentsMatchInputs(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	urls := []string{
		"https://a.example/", "not a url://", "https://c.example/", "https://d.example/",
		"https://e.example/", "https://f.example/", "https://a.example/",
	}

	segments := e.FetchPages(context.Background(), browsertest.NewSession(testSite), urls, nil)

	require.Len(t, segments, len(urls))
	assert.Contains(t, segments[0], "Alpha")
	assert.Contains(t, segments[1], "Error fetching")
	assert.Contains(t, segments[4], "Epsilon")
	assert.Contains(t, segments[5], "Skipped https://f.example/: at most 5 URLs are fetched per call")
	assert.Contains(t, segments[6], "Skipped")
}

func TestFetchPages_OpenFailure(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	sess := browsertest.NewSession(testSite)
	sess.SiblingErr = errors.New("browser has been closed")

	segments := e.FetchPages(context.Background(), sess, []string{"https://a.example/"}, nil)

	require.Len(t, segments, 1)
	assert.Contains(t, segments[0], "Error fetching https://a.example/: opening page: browser has been closed")
}

func TestFetchPages_SlowURLDoesNotBlockOthers(t *testing.T) {
	opts := DefaultOptions()
	opts.ActionTimeout = 50 * time.Millisecond
	opts.NavigationTimeout = 50 * time.Millisecond
	e := newTestExecutor(t, opts)

	start := time.Now()
	segments := e.FetchPages(context.Background(), browsertest.NewSession(testSite),
		[]string{"https://slow.example/", "https://a.example/"}, nil)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Contains(t, segments[0], "Error fetching https://slow.example/")
	assert.Contains(t, segments[1], "Alpha body text")
}

func TestFetchPages_BlockedSegment(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	rec := &fakeRecorder{}

	segments := e.FetchPages(context.Background(), browsertest.NewSession(testSite),
		[]string{"https://challenge.example/", "https://c.example/"}, rec)

	assert.Contains(t, segments[0], "WARNING: access to https://challenge.example/ is blocked")
	assert.Equal(t, []string{"https://c.example/"}, rec.urls)
}

func TestFetchPages_TruncatesText(t *testing.T) {
	opts := DefaultOptions()
	opts.FetchTextChars = 20
	e := newTestExecutor(t, opts)
	site := browsertest.Site{"https://long.example/": {Title: "Long", Text: strings.Repeat("word ", 100)}}
	rec := &fakeRecorder{}

	segments := e.FetchPages(context.Background(), browsertest.NewSession(site), []string{"https://long.example/"}, rec)

	assert.Contains(t, segments[0], "[... truncated, 20 of")
	require.Len(t, rec.pages, 1)
	assert.Greater(t, len(rec.pages[0].text), 20, "the recorder receives the full text")
}

func TestDefinitions(t *testing.T) {
	e := newTestExecutor(t, DefaultOptions())
	defs := e.Definitions()

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
		assert.NotEmpty(t, d.Description, d.Name)
		assert.Equal(t, "object", d.Parameters["type"], d.Name)
	}
	assert.Equal(t, []string{
		"navigate", "fetch_pages", "snapshot", "click", "type_text", "press_key",
		"select_option", "fill_form", "take_screenshot", "wait_for", "go_back",
	}, names)

	props := defs[1].Parameters["properties"].(map[string]interface{})
	urls := props["urls"].(map[string]interface{})
	assert.Equal(t, 5, urls["maxItems"])
}

func TestNewExecutor_FillsDefaults(t *testing.T) {
	e := NewExecutor(Options{})
	assert.Equal(t, DefaultOptions(), e.Options())
}
