package headless

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/entrhq/forage/pkg/agent"
	"github.com/entrhq/forage/pkg/types"
)

// LogLevel represents the progress verbosity level
type LogLevel int

const (
	// LogLevelQuiet shows only warnings, errors and the final summary
	LogLevelQuiet LogLevel = iota
	// LogLevelNormal shows turns and actions (default)
	LogLevelNormal
	// LogLevelVerbose adds action arguments and token usage
	LogLevelVerbose
	// LogLevelDebug adds action results
	LogLevelDebug
)

const (
	colorReset     = "\033[0m"
	colorCyan      = "\033[36m"
	colorSalmon    = "\033[38;5;217m"
	colorYellow    = "\033[33m"
	colorRed       = "\033[31m"
	colorGray      = "\033[90m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
	colorBoldWhite = "\033[1;37m"
)

// Progress prints agent events for a human watching a CLI run.
type Progress struct {
	mu     sync.Mutex
	level  LogLevel
	writer io.Writer
	color  bool
	calls  int
}

// NewProgress creates a printer writing to w, or stderr when w is nil.
func NewProgress(w io.Writer, level LogLevel, color bool) *Progress {
	if w == nil {
		w = os.Stderr
	}
	return &Progress{level: level, writer: w, color: color}
}

func (p *Progress) paint(color, s string) string {
	if !p.color {
		return s
	}
	return color + s + colorReset
}

func (p *Progress) printf(color, format string, args ...interface{}) {
	fmt.Fprintln(p.writer, p.paint(color, fmt.Sprintf(format, args...)))
}

// Header prints a prominent header message
func (p *Progress) Header(message string) {
	if p.level < LogLevelNormal {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rule := strings.Repeat("=", 70)
	fmt.Fprintln(p.writer)
	p.printf(colorBoldWhite, "%s", rule)
	p.printf(colorBoldWhite, "  %s", message)
	p.printf(colorBoldWhite, "%s", rule)
}

// Handle prints one agent event. It can be passed to agent.WithEventHandler.
func (p *Progress) Handle(e *types.AgentEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Type {
	case types.EventTypeTurnStart:
		if p.level >= LogLevelNormal {
			fmt.Fprintln(p.writer)
			p.printf(colorCyan, "[%d] Planning", e.Turn)
		}
	case types.EventTypeWrapUp:
		if p.level >= LogLevelNormal {
			p.printf(colorYellow, "  Asking for the final answer (%v turn(s) left)", e.Metadata["turns_left"])
		}
	case types.EventTypeToolCall:
		p.calls++
		switch p.level {
		case LogLevelQuiet:
		case LogLevelNormal:
			p.printf(colorGray, "  • %s (#%d)", e.ToolName, p.calls)
		default:
			p.printf(colorCyan, "  • %s (#%d) %v", e.ToolName, p.calls, e.Metadata["arguments"])
		}
	case types.EventTypeToolResult:
		if p.level >= LogLevelDebug {
			p.printf(colorGray, "    %s", truncate(e.Content, 300))
		}
	case types.EventTypeNavigationBatch:
		if p.level >= LogLevelNormal {
			urls, _ := e.Metadata["urls"].([]string)
			p.printf(colorSalmon, "  Fetching %d pages in parallel", len(urls))
		}
	case types.EventTypeTokenUsage:
		if p.level >= LogLevelVerbose && e.TokenUsage != nil {
			p.printf(colorGray, "  → tokens in %s, out %s", formatNumber(e.TokenUsage.InputTokens), formatNumber(e.TokenUsage.OutputTokens))
		}
	case types.EventTypeFallbackStart:
		if p.level >= LogLevelNormal {
			p.printf(colorSalmon, "  Summarizing %v collected page(s)", e.Metadata["pages"])
		}
	case types.EventTypeFallbackEnd:
		if ok, _ := e.Metadata["ok"].(bool); !ok {
			p.printf(colorYellow, "⚠ Warning: summary could not be produced")
		}
	case types.EventTypeTerminated:
		if p.level >= LogLevelNormal {
			p.printf(colorGray, "  Stopped: %s", e.Content)
		}
	case types.EventTypeError:
		p.printf(colorBoldRed, "✗ Error: %v", e.Error)
	}
}

// Summary prints the final result.
func (p *Progress) Summary(task string, res *agent.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rule := strings.Repeat("=", 70)
	fmt.Fprintln(p.writer)
	p.printf(colorBoldWhite, "%s", rule)
	p.printf(colorBoldWhite, "  RUN SUMMARY")
	p.printf(colorBoldWhite, "%s", rule)

	switch {
	case res.Success && !res.Partial:
		fmt.Fprintf(p.writer, "  Status: %s\n", p.paint(colorBoldGreen, "✓ SUCCESS"))
	case res.Success:
		fmt.Fprintf(p.writer, "  Status: %s\n", p.paint(colorYellow, "⚠ PARTIAL SUCCESS"))
	default:
		fmt.Fprintf(p.writer, "  Status: %s\n", p.paint(colorBoldRed, "✗ FAILED"))
	}
	fmt.Fprintf(p.writer, "  Task: %s\n", task)
	fmt.Fprintf(p.writer, "  Duration: %.1fs\n", res.DurationSeconds)
	fmt.Fprintf(p.writer, "  Sources: %d\n", len(res.Sources))
	if res.TokenUsage != nil {
		fmt.Fprintf(p.writer, "  Tokens: %s\n", formatNumber(res.TokenUsage.Total))
	}
	if res.CostUSD > 0 {
		fmt.Fprintf(p.writer, "  Cost: $%.4f\n", res.CostUSD)
	}
	if p.level >= LogLevelVerbose {
		for _, s := range res.Sources {
			fmt.Fprintf(p.writer, "    • %s\n", s)
		}
	}
	p.printf(colorBoldWhite, "%s", rule)
	fmt.Fprintln(p.writer)
}

// ParseLogLevel converts a verbosity name to a LogLevel. Unknown names are normal.
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "quiet":
		return LogLevelQuiet
	case "normal":
		return LogLevelNormal
	case "verbose":
		return LogLevelVerbose
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelNormal
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// formatNumber formats large numbers with commas for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
