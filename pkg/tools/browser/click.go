package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/forage/pkg/agent/tools"
	"github.com/entrhq/forage/pkg/browser"
)

// click clicks an element addressed by role and accessible name.
func (e *Executor) click(ctx context.Context, sess Session, raw string, rec Recorder) (string, error) {
	var input clickArgs
	if err := tools.DecodeArguments(raw, &input); err != nil {
		return "", err
	}
	loc, err := locator(input.Role, input.Name, input.Index)
	if err != nil {
		return "", err
	}

	page := sess.Page()
	before := page.URL()
	if err := page.Click(ctx, loc); err != nil {
		return "", err
	}

	return afterInteraction(ctx, page, before, rec, fmt.Sprintf("Clicked %s", describe(loc))), nil
}

// pressKey presses a keyboard key on the current page.
func (e *Executor) pressKey(ctx context.Context, sess Session, raw string, rec Recorder) (string, error) {
	var input pressKeyArgs
	if err := tools.DecodeArguments(raw, &input); err != nil {
		return "", err
	}
	key := strings.TrimSpace(input.Key)
	if key == "" {
		return "", fmt.Errorf("key is required")
	}

	page := sess.Page()
	before := page.URL()
	if err := page.Press(ctx, key); err != nil {
		return "", err
	}
	return afterInteraction(ctx, page, before, rec, fmt.Sprintf("Pressed %s", key)), nil
}

// afterInteraction reports the page state after an action that may have
// navigated. A URL change counts as a navigation.
func afterInteraction(ctx context.Context, page browser.Page, before string, rec Recorder, summary string) string {
	after := page.URL()
	if after == before {
		return summary + "\n\nThe page URL did not change. Use snapshot to see the updated page."
	}

	rec.RecordNavigation(after)
	rec.RecordURL(after)
	title, _ := page.Title(ctx)
	return fmt.Sprintf("%s\n\nThe page navigated.\nURL: %s\nTitle: %s\n\nUse snapshot to see the new page.",
		summary, after, fallback(title, "Unknown"))
}

func locator(role, name string, index int) (browser.Locator, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return browser.Locator{}, fmt.Errorf("role is required")
	}
	if index < 0 {
		return browser.Locator{}, fmt.Errorf("index cannot be negative")
	}
	return browser.Locator{Role: strings.ToLower(role), Name: name, Index: index}, nil
}

func describe(loc browser.Locator) string {
	s := fmt.Sprintf("%s %q", loc.Role, loc.Name)
	if loc.Index > 0 {
		s += fmt.Sprintf(" (match %d)", loc.Index)
	}
	return s
}
