package browser

import (
	"context"
	"time"

	"github.com/entrhq/forage/pkg/browser"
)

// ActionKind names one action in the closed browser vocabulary.
type ActionKind string

const (
	ActionNavigate       ActionKind = "navigate"
	ActionSnapshot       ActionKind = "snapshot"
	ActionClick          ActionKind = "click"
	ActionTypeText       ActionKind = "type_text"
	ActionPressKey       ActionKind = "press_key"
	ActionSelectOption   ActionKind = "select_option"
	ActionFillForm       ActionKind = "fill_form"
	ActionTakeScreenshot ActionKind = "take_screenshot"
	ActionWaitFor        ActionKind = "wait_for"
	ActionGoBack         ActionKind = "go_back"
	ActionFetchPages     ActionKind = "fetch_pages"
)

// Session is the per-request browsing surface the executor acts on.
// *browser.Session satisfies it.
type Session interface {
	Page() browser.Page
	OpenSibling(ctx context.Context) (browser.Page, error)
}

// Recorder receives the progress an action reveals. Implementations are
// request-local and are only called from the goroutine running Execute.
type Recorder interface {
	RecordNavigation(url string) bool
	RecordURL(url string) bool
	RecordPageContent(url, text string) bool
}

// Analyzer describes a screenshot in text.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

// Options configures action timeouts and output sizes.
type Options struct {
	// ActionTimeout bounds every action that is not a navigation
	ActionTimeout time.Duration `yaml:"action_timeout" json:"action_timeout"`

	// NavigationTimeout bounds a single page load
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`

	// FetchMaxURLs caps the URLs accepted by one fetch_pages call
	FetchMaxURLs int `yaml:"fetch_max_urls" json:"fetch_max_urls"`

	// FetchTextChars caps the text returned to the planner per fetched URL
	FetchTextChars int `yaml:"fetch_text_chars" json:"fetch_text_chars"`

	// SnapshotChars caps the structural snapshot returned to the planner
	SnapshotChars int `yaml:"snapshot_chars" json:"snapshot_chars"`

	// PreviewChars caps the text preview returned after a navigation
	PreviewChars int `yaml:"preview_chars" json:"preview_chars"`

	// MaxWait caps the timeout the planner may request in wait_for
	MaxWait time.Duration `yaml:"max_wait" json:"max_wait"`
}

// DefaultOptions returns the standard action limits.
func DefaultOptions() Options {
	return Options{
		ActionTimeout:     30 * time.Second,
		NavigationTimeout: 30 * time.Second,
		FetchMaxURLs:      5,
		FetchTextChars:    8000,
		SnapshotChars:     15000,
		PreviewChars:      1500,
		MaxWait:           30 * time.Second,
	}
}

type navigateArgs struct {
	URL string `json:"url"`
}

type clickArgs struct {
	Role  string `json:"role"`
	Name  string `json:"name"`
	Index int    `json:"index"`
}

type typeTextArgs struct {
	Role   string `json:"role"`
	Name   string `json:"name"`
	Text   string `json:"text"`
	Index  int    `json:"index"`
	Submit bool   `json:"submit"`
}

type pressKeyArgs struct {
	Key string `json:"key"`
}

type selectOptionArgs struct {
	Role  string `json:"role"`
	Name  string `json:"name"`
	Value string `json:"value"`
	Index int    `json:"index"`
}

type fillFormArgs struct {
	Fields []browser.FormField `json:"fields"`
}

type screenshotArgs struct {
	FullPage bool `json:"full_page"`
}

type waitForArgs struct {
	Text           string   `json:"text"`
	TimeoutSeconds *float64 `json:"timeout_seconds"`
}

type fetchPagesArgs struct {
	URLs []string `json:"urls"`
}

type noopRecorder struct{}

func (noopRecorder) RecordNavigation(string) bool          { return false }
func (noopRecorder) RecordURL(string) bool                 { return false }
func (noopRecorder) RecordPageContent(string, string) bool { return false }
