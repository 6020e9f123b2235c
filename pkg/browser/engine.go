package browser

import (
	"context"
	"time"
)

// Engine launches the shared browser process.
type Engine interface {
	Launch(ctx context.Context) (Instance, error)
}

// Instance is a running browser process. Pages created from one Instance are
// isolated from each other (separate cookies, storage and history).
type Instance interface {
	// NewPage opens a fresh isolated browsing context with a single page.
	NewPage(ctx context.Context) (Page, error)

	// OnDisconnect registers fn to run when the process exits or the
	// connection to it is lost.
	OnDisconnect(fn func())

	// Close terminates the browser process.
	Close() error
}

// Locator addresses an element by accessibility role and accessible name.
// Index selects among several matches and defaults to the first.
type Locator struct {
	Role  string `json:"role"`
	Name  string `json:"name"`
	Index int    `json:"index,omitempty"`
}

// FormField is one input to fill in a fill_form action.
type FormField struct {
	Role  string `json:"role"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NavigationResult describes where a navigation ended up.
type NavigationResult struct {
	Status   int
	FinalURL string
	Title    string
}

// Page is the primitive action surface of one isolated browsing context.
// Calls are bounded by the context deadline but cannot be interrupted once
// the browser has accepted them.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) (*NavigationResult, error)
	StructuralSnapshot(ctx context.Context) (string, error)
	InnerText(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	Click(ctx context.Context, loc Locator) error
	Type(ctx context.Context, loc Locator, text string, submit bool) error
	Press(ctx context.Context, key string) error
	Select(ctx context.Context, loc Locator, value string) error
	Fill(ctx context.Context, fields []FormField) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	GoBack(ctx context.Context) error
	WaitForText(ctx context.Context, text string, timeout time.Duration) error
	URL() string
	Title(ctx context.Context) (string, error)
	Close() error
}
