package agent

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"

	"github.com/entrhq/forage/pkg/types"
)

// PageContent is text captured from one visited page.
type PageContent struct {
	URL  string
	Text string
}

// assetPattern matches URL paths that point at static assets rather than pages.
// Data documents such as JSON or XML feeds are pages the planner can read,
// so only image, style, script, font and media files are filtered.
const assetPattern = "*.{png,jpg,jpeg,gif,webp,svg,ico,bmp,avif,tif,tiff," +
	"css,js,mjs," +
	"woff,woff2,ttf,otf,eot," +
	"mp4,webm,mp3,wav,ogg,m4a,mov,avi}"

// AssetFilter reports whether a URL points at a static asset.
type AssetFilter struct {
	pattern glob.Glob
}

// NewAssetFilter compiles the asset extension pattern.
func NewAssetFilter() *AssetFilter {
	return &AssetFilter{pattern: glob.MustCompile(assetPattern)}
}

// IsAsset matches the lowercased path, ignoring query and fragment.
func (f *AssetFilter) IsAsset(u *url.URL) bool {
	return f.pattern.Match(strings.ToLower(u.Path))
}

// Accumulator aggregates the progress of one run under size caps. It is
// request-local and not safe for concurrent use.
type Accumulator struct {
	limits Limits
	assets *AssetFilter

	navigations int
	urls        []string
	seen        map[string]struct{}
	pages       []PageContent
	totalChars  int
	usage       types.Usage

	response string
	fallback bool
}

// NewAccumulator creates an empty accumulator. Non-positive limits fall back
// to defaults.
func NewAccumulator(limits Limits) *Accumulator {
	def := DefaultLimits()
	if limits.MinPageChars < 0 {
		limits.MinPageChars = 0
	}
	if limits.MaxPageChars <= 0 {
		limits.MaxPageChars = def.MaxPageChars
	}
	if limits.MaxTotalChars <= 0 {
		limits.MaxTotalChars = def.MaxTotalChars
	}
	if limits.MaxListedSources <= 0 {
		limits.MaxListedSources = def.MaxListedSources
	}
	return &Accumulator{
		limits: limits,
		assets: NewAssetFilter(),
		seen:   make(map[string]struct{}),
	}
}

// RecordNavigation counts a navigation attempt.
func (a *Accumulator) RecordNavigation(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	a.navigations++
	return true
}

// RecordURL adds a visited page to the sources. Non-web schemes, assets and
// duplicates (ignoring fragments) are rejected.
func (a *Accumulator) RecordURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if a.assets.IsAsset(u) {
		return false
	}
	u.Fragment = ""
	u.RawFragment = ""
	key := u.String()
	if _, dup := a.seen[key]; dup {
		return false
	}
	a.seen[key] = struct{}{}
	a.urls = append(a.urls, key)
	return true
}

// RecordPageContent captures page text. Captures shorter than MinPageChars
// are dropped, longer ones are truncated to MaxPageChars, and nothing is
// accepted once MaxTotalChars has been reached.
func (a *Accumulator) RecordPageContent(rawURL, text string) bool {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n == 0 || n < a.limits.MinPageChars {
		return false
	}
	if a.totalChars >= a.limits.MaxTotalChars {
		return false
	}
	if n > a.limits.MaxPageChars {
		text = string([]rune(text)[:a.limits.MaxPageChars])
		n = a.limits.MaxPageChars
	}
	a.pages = append(a.pages, PageContent{URL: rawURL, Text: text})
	a.totalChars += n
	return true
}

// RecordTokenUsage adds one planner call's usage to the totals.
func (a *Accumulator) RecordTokenUsage(u types.Usage) {
	a.usage.InputTokens += u.InputTokens
	a.usage.OutputTokens += u.OutputTokens
	a.usage.ReasoningTokens += u.ReasoningTokens
	a.usage.CacheReadTokens += u.CacheReadTokens
	a.usage.CostUSD += u.CostUSD
}

// SetResponse stores the planner's answer.
func (a *Accumulator) SetResponse(text string) {
	a.response = strings.TrimSpace(text)
	a.fallback = false
}

// SetFallbackResponse stores an answer synthesized from captured content.
func (a *Accumulator) SetFallbackResponse(text string) {
	a.response = strings.TrimSpace(text)
	a.fallback = a.response != ""
}

// NavigationCount returns the number of navigation attempts.
func (a *Accumulator) NavigationCount() int { return a.navigations }

// URLs returns the recorded sources in visit order.
func (a *Accumulator) URLs() []string { return append([]string(nil), a.urls...) }

// Pages returns the captured content in capture order.
func (a *Accumulator) Pages() []PageContent { return append([]PageContent(nil), a.pages...) }

// TotalChars returns the captured content size in runes.
func (a *Accumulator) TotalChars() int { return a.totalChars }

// HasContent reports whether any page text was captured.
func (a *Accumulator) HasContent() bool { return len(a.pages) > 0 }

// Response returns the current answer text.
func (a *Accumulator) Response() string { return a.response }

// Usage returns the summed token usage.
func (a *Accumulator) Usage() types.Usage { return a.usage }
