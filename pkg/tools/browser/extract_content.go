package browser

import (
	"context"
	"fmt"
	"strings"
)

// snapshot returns the accessibility tree of the current page and captures
// its text into the recorder.
func (e *Executor) snapshot(ctx context.Context, sess Session, raw string, rec Recorder) (string, error) {
	page := sess.Page()

	tree, err := page.StructuralSnapshot(ctx)
	if err != nil {
		return "", err
	}

	current := page.URL()
	title, _ := page.Title(ctx)

	if text, textErr := page.InnerText(ctx); textErr == nil && text != "" {
		if reason := e.blocks.Detect(0, current, title, text); reason != "" {
			return blockedWarning(current, reason), nil
		}
		rec.RecordPageContent(current, text)
	}
	rec.RecordURL(current)

	var b strings.Builder
	fmt.Fprintf(&b, "Page snapshot\n\nURL: %s\nTitle: %s\n\n", current, fallback(title, "Unknown"))
	b.WriteString(truncateRunes(tree, e.opts.SnapshotChars))
	return b.String(), nil
}
