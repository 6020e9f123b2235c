package browser

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/entrhq/forage/pkg/agent/tools"
)

const screenshotMIME = "image/jpeg"

// takeScreenshot captures the current page. When an analyzer is configured the
// image is described in text, since the planner transcript carries text only.
func (e *Executor) takeScreenshot(ctx context.Context, sess Session, raw string, rec Recorder) (string, error) {
	var input screenshotArgs
	if err := tools.DecodeArguments(raw, &input); err != nil {
		return "", err
	}

	page := sess.Page()
	data, err := page.Screenshot(ctx, input.FullPage)
	if err != nil {
		return "", err
	}

	current := page.URL()
	title, _ := page.Title(ctx)

	var b strings.Builder
	fmt.Fprintf(&b, "Screenshot captured (%d bytes)\n\nURL: %s\nTitle: %s\n", len(data), current, fallback(title, "Unknown"))

	if e.analyzer == nil {
		b.WriteString("\nVisual analysis is not available. Use snapshot to read the page.")
		return b.String(), nil
	}

	analysis, err := e.analyzer.AnalyzeImage(ctx, data, screenshotMIME, analysisPrompt(current, title))
	if err != nil {
		// The screenshot itself succeeded; analysis failure is only reported.
		e.logger.Warn("screenshot analysis failed", zap.String("url", current), zap.Error(err))
		fmt.Fprintf(&b, "\nVisual analysis failed: %v", err)
		return b.String(), nil
	}

	fmt.Fprintf(&b, "\nVisual analysis:\n%s", strings.TrimSpace(analysis))
	return b.String(), nil
}

func analysisPrompt(url, title string) string {
	var prompt strings.Builder
	prompt.WriteString("Describe this screenshot of a web page for an agent that cannot see it.\n")
	fmt.Fprintf(&prompt, "URL: %s\nTitle: %s\n\n", url, title)
	prompt.WriteString("Cover the page type, the main content visible, any dialogs, banners or captchas ")
	prompt.WriteString("covering the content, and the controls that look most useful for continuing. ")
	prompt.WriteString("Quote visible text exactly where it matters. Keep it under 200 words.")
	return prompt.String()
}
