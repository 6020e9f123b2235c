package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/forage/pkg/agent/tools"
)

const defaultWait = 10 * time.Second

// waitFor waits for text to appear, or for the network to settle.
func (e *Executor) waitFor(ctx context.Context, sess Session, raw string, rec Recorder) (string, error) {
	var input waitForArgs
	if err := tools.DecodeArguments(raw, &input); err != nil {
		return "", err
	}

	timeout := defaultWait
	if input.TimeoutSeconds != nil {
		if *input.TimeoutSeconds <= 0 {
			return "", fmt.Errorf("timeout_seconds must be positive")
		}
		timeout = time.Duration(*input.TimeoutSeconds * float64(time.Second))
	}
	if timeout > e.opts.MaxWait {
		timeout = e.opts.MaxWait
	}

	page := sess.Page()
	if err := page.WaitForText(ctx, input.Text, timeout); err != nil {
		return "", err
	}

	if input.Text == "" {
		return fmt.Sprintf("Page settled\n\nURL: %s", page.URL()), nil
	}
	return fmt.Sprintf("Text %q is now visible\n\nURL: %s", input.Text, page.URL()), nil
}
