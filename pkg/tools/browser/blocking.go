package browser

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gobwas/glob"
)

// Patterns that identify bot-challenge and access-denied pages. All matching
// is done on lowercased input.
var (
	blockedURLPatterns = []string{
		"*captcha*",
		"*/cdn-cgi/challenge-platform/*",
		"*://*/sorry/*",
		"*/_incapsula_resource*",
		"*/distil_r_captcha*",
		"*perimeterx*",
		"*/blocked?*",
	}

	blockedTitlePatterns = []string{
		"just a moment*",
		"attention required*",
		"access denied*",
		"*are you a robot*",
		"*captcha*",
		"security check*",
		"pardon our interruption*",
		"*bot verification*",
	}

	blockedTextPatterns = []string{
		"*verify you are human*",
		"*checking your browser before accessing*",
		"*enable javascript and cookies to continue*",
		"*unusual traffic from your computer network*",
	}
)

// BlockDetector recognizes pages served to automated clients instead of
// the requested content.
type BlockDetector struct {
	urls   []glob.Glob
	titles []glob.Glob
	texts  []glob.Glob
}

// NewBlockDetector compiles the built-in patterns.
func NewBlockDetector() *BlockDetector {
	return &BlockDetector{
		urls:   compileAll(blockedURLPatterns),
		titles: compileAll(blockedTitlePatterns),
		texts:  compileAll(blockedTextPatterns),
	}
}

func compileAll(patterns []string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, glob.MustCompile(p))
	}
	return out
}

// Detect returns a short reason when the page looks like a bot challenge,
// or "" when it does not. text may be empty.
func (d *BlockDetector) Detect(status int, finalURL, title, text string) string {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests:
		return fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
	}

	if u := strings.ToLower(finalURL); u != "" {
		for _, g := range d.urls {
			if g.Match(u) {
				return "redirected to a challenge page"
			}
		}
	}

	if t := strings.ToLower(strings.TrimSpace(title)); t != "" {
		for _, g := range d.titles {
			if g.Match(t) {
				return fmt.Sprintf("challenge page title %q", title)
			}
		}
	}

	if text != "" {
		head := text
		if len(head) > 2000 {
			head = head[:2000]
		}
		head = strings.ToLower(head)
		for _, g := range d.texts {
			if g.Match(head) {
				return "page asks to verify a human visitor"
			}
		}
	}

	return ""
}

// blockedWarning is the text returned to the planner for a blocked page.
func blockedWarning(url, reason string) string {
	return fmt.Sprintf("WARNING: access to %s is blocked (%s). This site is refusing automated access. "+
		"Do not retry this URL or other pages on the same site; use a different source instead.", url, reason)
}
