package browser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightEngine launches Chromium through playwright-go.
type PlaywrightEngine struct {
	opts Options
}

// NewPlaywrightEngine creates an engine with the given options.
func NewPlaywrightEngine(opts Options) *PlaywrightEngine {
	return &PlaywrightEngine{opts: opts}
}

// Launch installs the driver if configured, starts playwright and launches
// a Chromium process.
func (e *PlaywrightEngine) Launch(ctx context.Context) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Discard driver output so it does not interleave with structured logs
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if e.opts.InstallDriver {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(e.opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &playwrightInstance{pw: pw, browser: browser, opts: e.opts}, nil
}

type playwrightInstance struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
}

// NewPage creates a new browser context so cookies and storage are not shared
// with any other session.
func (i *playwrightInstance) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	width, height := i.opts.ViewportWidth, i.opts.ViewportHeight
	if width == 0 || height == 0 {
		width, height = DefaultViewportWidth, DefaultViewportHeight
	}
	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: width, Height: height},
	}
	if i.opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(i.opts.UserAgent)
	}

	bctx, err := i.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	defaultTimeout := i.opts.DefaultTimeout
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	page.SetDefaultTimeout(millis(defaultTimeout))

	return &playwrightPage{ctx: bctx, page: page, defaultTimeout: defaultTimeout}, nil
}

func (i *playwrightInstance) OnDisconnect(fn func()) {
	i.browser.OnDisconnected(func(playwright.Browser) { fn() })
}

func (i *playwrightInstance) Close() error {
	var errs []string
	if err := i.browser.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := i.pw.Stop(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing browser: %s", strings.Join(errs, "; "))
	}
	return nil
}

type playwrightPage struct {
	ctx            playwright.BrowserContext
	page           playwright.Page
	defaultTimeout time.Duration
}

// timeout derives a playwright timeout in milliseconds from the context
// deadline, capped at limit.
func (p *playwrightPage) timeout(ctx context.Context, limit time.Duration) *float64 {
	if limit <= 0 {
		limit = p.defaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < limit {
			limit = remaining
		}
	}
	if limit < time.Millisecond {
		limit = time.Millisecond
	}
	return playwright.Float(millis(limit))
}

func (p *playwrightPage) locate(loc Locator) playwright.Locator {
	opts := playwright.PageGetByRoleOptions{}
	if loc.Name != "" {
		opts.Name = loc.Name
	}
	return p.page.GetByRole(playwright.AriaRole(loc.Role), opts).Nth(loc.Index)
}

func (p *playwrightPage) Navigate(ctx context.Context, url string, timeout time.Duration) (*NavigationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   p.timeout(ctx, timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	result := &NavigationResult{FinalURL: p.page.URL()}
	if resp != nil {
		result.Status = resp.Status()
	}
	if title, err := p.page.Title(); err == nil {
		result.Title = title
	}
	return result, nil
}

func (p *playwrightPage) StructuralSnapshot(ctx context.Context) (string, error) {
	snapshot, err := p.page.Locator("body").AriaSnapshot(playwright.LocatorAriaSnapshotOptions{
		Timeout: p.timeout(ctx, 0),
	})
	if err != nil {
		return "", fmt.Errorf("snapshot failed: %w", err)
	}
	return snapshot, nil
}

func (p *playwrightPage) InnerText(ctx context.Context) (string, error) {
	text, err := p.page.Locator("body").InnerText(playwright.LocatorInnerTextOptions{
		Timeout: p.timeout(ctx, 0),
	})
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return text, nil
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("content extraction failed: %w", err)
	}
	return content, nil
}

func (p *playwrightPage) Click(ctx context.Context, loc Locator) error {
	if err := p.locate(loc).Click(playwright.LocatorClickOptions{Timeout: p.timeout(ctx, 0)}); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) Type(ctx context.Context, loc Locator, text string, submit bool) error {
	target := p.locate(loc)
	if err := target.Fill(text, playwright.LocatorFillOptions{Timeout: p.timeout(ctx, 0)}); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	if submit {
		if err := target.Press("Enter", playwright.LocatorPressOptions{Timeout: p.timeout(ctx, 0)}); err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}
	}
	return nil
}

func (p *playwrightPage) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Keyboard().Press(key); err != nil {
		return fmt.Errorf("key press failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) Select(ctx context.Context, loc Locator, value string) error {
	target := p.locate(loc)
	opts := playwright.LocatorSelectOptionOptions{Timeout: p.timeout(ctx, 0)}

	// Match by option value first, then by visible label
	if _, err := target.SelectOption(playwright.SelectOptionValues{Values: &[]string{value}}, opts); err == nil {
		return nil
	}
	if _, err := target.SelectOption(playwright.SelectOptionValues{Labels: &[]string{value}}, opts); err != nil {
		return fmt.Errorf("select failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) Fill(ctx context.Context, fields []FormField) error {
	for i, field := range fields {
		target := p.locate(Locator{Role: field.Role, Name: field.Name})
		if err := target.Fill(field.Value, playwright.LocatorFillOptions{Timeout: p.timeout(ctx, 0)}); err != nil {
			return fmt.Errorf("fill field %d (%s %q) failed: %w", i+1, field.Role, field.Name, err)
		}
	}
	return nil
}

func (p *playwrightPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	data, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypeJpeg,
		Quality:  playwright.Int(70),
		Timeout:  p.timeout(ctx, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

func (p *playwrightPage) GoBack(ctx context.Context) error {
	if _, err := p.page.GoBack(playwright.PageGoBackOptions{Timeout: p.timeout(ctx, 0)}); err != nil {
		return fmt.Errorf("go back failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) WaitForText(ctx context.Context, text string, timeout time.Duration) error {
	if text == "" {
		err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateNetworkidle,
			Timeout: p.timeout(ctx, timeout),
		})
		if err != nil {
			return fmt.Errorf("wait failed: %w", err)
		}
		return nil
	}

	err := p.page.GetByText(text).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: p.timeout(ctx, timeout),
	})
	if err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Title()
}

// Close closes the page together with its browser context.
func (p *playwrightPage) Close() error {
	var errs []string
	if err := p.page.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := p.ctx.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing session: %s", strings.Join(errs, "; "))
	}
	return nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
