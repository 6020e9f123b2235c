package browser

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/forage/pkg/agent/tools"
	"github.com/entrhq/forage/pkg/browser"
)

// fetched is the outcome of loading one URL in its own page.
type fetched struct {
	url      string
	finalURL string
	title    string
	text     string
	blocked  string
	skipped  bool
	err      error
}

// fetchPages loads several URLs in parallel and returns their text in request order.
func (e *Executor) fetchPages(ctx context.Context, sess Session, raw string, rec Recorder) (string, error) {
	var input fetchPagesArgs
	if err := tools.DecodeArguments(raw, &input); err != nil {
		return "", err
	}
	if len(input.URLs) == 0 {
		return "", fmt.Errorf("at least one url is required")
	}

	segments := e.FetchPages(ctx, sess, input.URLs, rec)
	return strings.Join(segments, "\n\n"), nil
}

// FetchPages opens every URL in a separate page of the session's browser,
// in parallel, and returns one text segment per input URL in input order.
// A failing URL yields an error segment; it never fails the batch. URLs past
// the FetchMaxURLs limit are not loaded and get a skip segment.
func (e *Executor) FetchPages(ctx context.Context, sess Session, urls []string, rec Recorder) []string {
	if rec == nil {
		rec = noopRecorder{}
	}
	ctx, cancel := context.WithTimeout(ctx, navigationTimeout(e.opts))
	defer cancel()

	results := make([]fetched, len(urls))
	for i, raw := range urls {
		results[i].url = strings.TrimSpace(raw)
		if i >= e.opts.FetchMaxURLs {
			results[i].skipped = true
			continue
		}
		target, err := normalizeURL(raw)
		if err != nil {
			results[i].err = err
			continue
		}
		results[i].url = target
		rec.RecordNavigation(target)
	}

	var g errgroup.Group
	launched := 0
	for i := range results {
		if results[i].skipped || results[i].err != nil {
			continue
		}
		launched++
		g.Go(func() error {
			e.fetchOne(ctx, sess, &results[i])
			return nil
		})
	}
	_ = g.Wait()
	e.metrics.RecordFanOut("fetch", launched)

	segments := make([]string, len(results))
	for i := range results {
		r := &results[i]
		if r.err == nil && !r.skipped && r.blocked == "" {
			rec.RecordURL(r.finalURL)
			if r.text != "" {
				rec.RecordPageContent(r.finalURL, r.text)
			}
		}
		segments[i] = e.formatFetched(i, len(results), r)
	}
	return segments
}

// fetchOne fills r from a fresh sibling page. It recovers panics so one bad
// page cannot take down the batch.
func (e *Executor) fetchOne(ctx context.Context, sess Session, r *fetched) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("fetch panicked", zap.String("url", r.url), zap.Any("panic", p))
			r.err = fmt.Errorf("panic: %v", p)
		}
	}()

	page, err := sess.OpenSibling(ctx)
	if err != nil {
		r.err = fmt.Errorf("opening page: %w", err)
		return
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			e.logger.Debug("closing fetch page failed", zap.String("url", r.url), zap.Error(cerr))
		}
	}()

	nav, err := page.Navigate(ctx, r.url, e.opts.NavigationTimeout)
	if err != nil {
		r.err = err
		return
	}
	r.finalURL = nav.FinalURL
	if r.finalURL == "" {
		r.finalURL = r.url
	}
	r.title = nav.Title

	r.text = readableText(ctx, page)
	if reason := e.blocks.Detect(nav.Status, r.finalURL, r.title, r.text); reason != "" {
		r.blocked = reason
	}
}

// readableText prefers text extracted from the page HTML and falls back to
// the rendered body text.
func readableText(ctx context.Context, page browser.Page) string {
	if content, err := page.Content(ctx); err == nil && content != "" {
		if extracted, err := ExtractText(content, 0); err == nil && strings.TrimSpace(extracted.Text) != "" {
			return extracted.Text
		}
	}
	text, _ := page.InnerText(ctx)
	return strings.TrimSpace(text)
}

func (e *Executor) formatFetched(i, n int, r *fetched) string {
	header := fmt.Sprintf("=== [%d/%d] %s ===\n", i+1, n, r.url)
	switch {
	case r.skipped:
		return header + fmt.Sprintf("Skipped %s: at most %d URLs are fetched per call", r.url, e.opts.FetchMaxURLs)
	case r.err != nil:
		return header + fmt.Sprintf("Error fetching %s: %v", r.url, r.err)
	case r.blocked != "":
		return header + blockedWarning(r.url, r.blocked)
	}

	var b strings.Builder
	b.WriteString(header)
	fmt.Fprintf(&b, "Title: %s\nURL: %s\n\n", fallback(r.title, "Unknown"), r.finalURL)
	if r.text == "" {
		b.WriteString("(no readable text)")
	} else {
		b.WriteString(truncateRunes(r.text, e.opts.FetchTextChars))
	}
	return b.String()
}
