package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/entrhq/forage/pkg/agent/tools"
)

// navigate opens a URL in the session's page.
func (e *Executor) navigate(ctx context.Context, sess Session, raw string, rec Recorder) (string, error) {
	var input navigateArgs
	if err := tools.DecodeArguments(raw, &input); err != nil {
		return "", err
	}
	target, err := normalizeURL(input.URL)
	if err != nil {
		return "", err
	}

	rec.RecordNavigation(target)

	page := sess.Page()
	nav, err := page.Navigate(ctx, target, e.opts.NavigationTimeout)
	if err != nil {
		return "", err
	}

	finalURL := nav.FinalURL
	if finalURL == "" {
		finalURL = target
	}

	// Preview text is best effort; a page that will not yield text is still loaded.
	text, _ := page.InnerText(ctx)

	if reason := e.blocks.Detect(nav.Status, finalURL, nav.Title, text); reason != "" {
		return blockedWarning(target, reason), nil
	}

	rec.RecordURL(finalURL)
	if text != "" {
		rec.RecordPageContent(finalURL, text)
	}

	var b strings.Builder
	b.WriteString("Navigation successful\n\n")
	fmt.Fprintf(&b, "URL: %s\n", finalURL)
	fmt.Fprintf(&b, "Title: %s\n", fallback(nav.Title, "Unknown"))
	if nav.Status != 0 {
		fmt.Fprintf(&b, "Status: %d\n", nav.Status)
	}
	if preview := truncateRunes(strings.TrimSpace(text), e.opts.PreviewChars); preview != "" {
		fmt.Fprintf(&b, "\nText preview:\n%s\n", preview)
	}
	b.WriteString("\nUse snapshot to see interactive elements or the full page text.")
	return b.String(), nil
}

// goBack returns to the previous page.
func (e *Executor) goBack(ctx context.Context, sess Session, raw string, rec Recorder) (string, error) {
	page := sess.Page()
	if err := page.GoBack(ctx); err != nil {
		return "", err
	}
	title, _ := page.Title(ctx)
	return fmt.Sprintf("Went back\n\nURL: %s\nTitle: %s", page.URL(), fallback(title, "Unknown")), nil
}

// normalizeURL validates a planner-supplied URL, adding https:// when the
// scheme is missing.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", raw)
	}
	return u.String(), nil
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// truncateRunes cuts s to at most n runes, marking the cut.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + fmt.Sprintf("\n[... truncated, %d of %d characters shown]", n, len(runes))
}
