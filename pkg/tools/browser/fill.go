package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/forage/pkg/agent/tools"
)

// typeText enters text into an input, optionally submitting it.
func (e *Executor) typeText(ctx context.Context, sess Session, raw string, rec Recorder) (string, error) {
	var input typeTextArgs
	if err := tools.DecodeArguments(raw, &input); err != nil {
		return "", err
	}
	loc, err := locator(input.Role, input.Name, input.Index)
	if err != nil {
		return "", err
	}

	page := sess.Page()
	before := page.URL()
	if err := page.Type(ctx, loc, input.Text, input.Submit); err != nil {
		return "", err
	}

	summary := fmt.Sprintf("Typed %d characters into %s", len([]rune(input.Text)), describe(loc))
	if input.Submit {
		summary += " and pressed Enter"
	}
	return afterInteraction(ctx, page, before, rec, summary), nil
}

// selectOption chooses an option in a select element.
func (e *Executor) selectOption(ctx context.Context, sess Session, raw string, rec Recorder) (string, error) {
	var input selectOptionArgs
	if err := tools.DecodeArguments(raw, &input); err != nil {
		return "", err
	}
	loc, err := locator(input.Role, input.Name, input.Index)
	if err != nil {
		return "", err
	}
	if input.Value == "" {
		return "", fmt.Errorf("value is required")
	}

	page := sess.Page()
	before := page.URL()
	if err := page.Select(ctx, loc, input.Value); err != nil {
		return "", err
	}
	return afterInteraction(ctx, page, before, rec, fmt.Sprintf("Selected %q in %s", input.Value, describe(loc))), nil
}

// fillForm fills several fields in one action.
func (e *Executor) fillForm(ctx context.Context, sess Session, raw string, rec Recorder) (string, error) {
	var input fillFormArgs
	if err := tools.DecodeArguments(raw, &input); err != nil {
		return "", err
	}
	if len(input.Fields) == 0 {
		return "", fmt.Errorf("at least one field is required")
	}
	for i, f := range input.Fields {
		if strings.TrimSpace(f.Role) == "" {
			return "", fmt.Errorf("field %d: role is required", i+1)
		}
		input.Fields[i].Role = strings.ToLower(strings.TrimSpace(f.Role))
	}

	if err := sess.Page().Fill(ctx, input.Fields); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Filled %d field(s):\n", len(input.Fields))
	for _, f := range input.Fields {
		fmt.Fprintf(&b, "- %s %q\n", f.Role, f.Name)
	}
	b.WriteString("\nSubmit the form with click or press_key when ready.")
	return b.String(), nil
}
