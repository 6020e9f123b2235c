// Package browsertest provides an in-memory browser engine for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/forage/pkg/browser"
)

// Document is a canned page served by the fake engine.
type Document struct {
	Title    string
	Text     string
	HTML     string
	Snapshot string
	Status   int
	FinalURL string
	Err      error
	Delay    time.Duration
}

// Site maps URLs to documents. It is shared by every page an engine creates.
type Site map[string]Document

// Engine is a fake browser.Engine.
type Engine struct {
	Site       Site
	LaunchErr  error
	NewPageErr error
	CloseErr   error

	mu        sync.Mutex
	launches  int
	instances []*Instance
}

// NewEngine creates an engine serving site.
func NewEngine(site Site) *Engine {
	if site == nil {
		site = Site{}
	}
	return &Engine{Site: site}
}

func (e *Engine) Launch(ctx context.Context) (browser.Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.launches++
	if e.LaunchErr != nil {
		return nil, e.LaunchErr
	}
	inst := &Instance{engine: e}
	e.instances = append(e.instances, inst)
	return inst, nil
}

// Launches returns how many times Launch was called.
func (e *Engine) Launches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.launches
}

// Latest returns the most recently launched instance.
func (e *Engine) Latest() *Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.instances) == 0 {
		return nil
	}
	return e.instances[len(e.instances)-1]
}

// Instance is a fake browser.Instance.
type Instance struct {
	engine *Engine

	mu           sync.Mutex
	onDisconnect []func()
	pages        []*Page
	closed       bool
}

func (i *Instance) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i.engine.NewPageErr != nil {
		return nil, i.engine.NewPageErr
	}
	p := NewPage(i.engine.Site)
	p.CloseErr = i.engine.CloseErr

	i.mu.Lock()
	i.pages = append(i.pages, p)
	i.mu.Unlock()
	return p, nil
}

func (i *Instance) OnDisconnect(fn func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onDisconnect = append(i.onDisconnect, fn)
}

func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	return nil
}

// Closed reports whether Close was called.
func (i *Instance) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// Pages returns every page created from the instance.
func (i *Instance) Pages() []*Page {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]*Page(nil), i.pages...)
}

// Disconnect simulates a browser crash.
func (i *Instance) Disconnect() {
	i.mu.Lock()
	fns := append([]func(){}, i.onDisconnect...)
	i.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Page is a fake browser.Page driven by a Site.
type Page struct {
	Site Site

	// Per-action failures
	ClickErr      error
	TypeErr       error
	PressErr      error
	SelectErr     error
	FillErr       error
	ScreenshotErr error
	WaitErr       error
	CloseErr      error

	// ClickNavigatesTo makes a successful click navigate to this URL.
	ClickNavigatesTo string

	// ScreenshotData is returned by Screenshot.
	ScreenshotData []byte

	// PanicOn names an action that panics when called.
	PanicOn string

	mu      sync.Mutex
	current string
	history []string
	calls   []string
	typed   []string
	filled  []browser.FormField
	closed  bool
}

// NewPage creates a standalone fake page serving site.
func NewPage(site Site) *Page {
	return &Page{Site: site, current: "about:blank", ScreenshotData: []byte{0xff, 0xd8, 0xff}}
}

func (p *Page) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
	if p.PanicOn == call {
		panic(fmt.Sprintf("%s exploded", call))
	}
}

func (p *Page) doc() (Document, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.Site[p.current]
	return d, ok
}

func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) (*browser.NavigationResult, error) {
	p.record("navigate")
	d, ok := p.Site[url]
	if !ok {
		return nil, fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.Err != nil {
		return nil, d.Err
	}

	final := url
	if d.FinalURL != "" {
		final = d.FinalURL
	}
	status := d.Status
	if status == 0 {
		status = 200
	}

	p.mu.Lock()
	p.history = append(p.history, p.current)
	p.current = final
	p.mu.Unlock()

	return &browser.NavigationResult{Status: status, FinalURL: final, Title: d.Title}, nil
}

func (p *Page) StructuralSnapshot(ctx context.Context) (string, error) {
	p.record("snapshot")
	d, ok := p.doc()
	if !ok {
		return "", errors.New("no page loaded")
	}
	if d.Snapshot != "" {
		return d.Snapshot, nil
	}
	return fmt.Sprintf("- heading %q\n- text: %s", d.Title, d.Text), nil
}

func (p *Page) InnerText(ctx context.Context) (string, error) {
	p.record("inner_text")
	d, ok := p.doc()
	if !ok {
		return "", errors.New("no page loaded")
	}
	return d.Text, nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	p.record("content")
	d, ok := p.doc()
	if !ok {
		return "", errors.New("no page loaded")
	}
	if d.HTML != "" {
		return d.HTML, nil
	}
	return fmt.Sprintf("<html><head><title>%s</title></head><body><p>%s</p></body></html>", d.Title, d.Text), nil
}

func (p *Page) Click(ctx context.Context, loc browser.Locator) error {
	p.record("click")
	if p.ClickErr != nil {
		return p.ClickErr
	}
	if p.ClickNavigatesTo != "" {
		p.mu.Lock()
		p.history = append(p.history, p.current)
		p.current = p.ClickNavigatesTo
		p.mu.Unlock()
	}
	return nil
}

func (p *Page) Type(ctx context.Context, loc browser.Locator, text string, submit bool) error {
	p.record("type")
	if p.TypeErr != nil {
		return p.TypeErr
	}
	p.mu.Lock()
	p.typed = append(p.typed, text)
	p.mu.Unlock()
	return nil
}

func (p *Page) Press(ctx context.Context, key string) error {
	p.record("press")
	return p.PressErr
}

func (p *Page) Select(ctx context.Context, loc browser.Locator, value string) error {
	p.record("select")
	return p.SelectErr
}

func (p *Page) Fill(ctx context.Context, fields []browser.FormField) error {
	p.record("fill")
	if p.FillErr != nil {
		return p.FillErr
	}
	p.mu.Lock()
	p.filled = append(p.filled, fields...)
	p.mu.Unlock()
	return nil
}

func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p.record("screenshot")
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	return p.ScreenshotData, nil
}

func (p *Page) GoBack(ctx context.Context) error {
	p.record("go_back")
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) == 0 {
		return errors.New("no history")
	}
	p.current = p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]
	return nil
}

func (p *Page) WaitForText(ctx context.Context, text string, timeout time.Duration) error {
	p.record("wait")
	return p.WaitErr
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Page) Title(ctx context.Context) (string, error) {
	d, _ := p.doc()
	return d.Title, nil
}

func (p *Page) Close() error {
	p.record("close")
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.CloseErr
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Calls returns the recorded action names in order.
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Typed returns every text passed to Type.
func (p *Page) Typed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.typed...)
}

// Filled returns every field passed to Fill.
func (p *Page) Filled() []browser.FormField {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.FormField(nil), p.filled...)
}
