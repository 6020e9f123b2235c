package headless

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/forage/pkg/agent"
)

// RunRecord is the artifact written for one task.
type RunRecord struct {
	RequestID  string        `json:"request_id"`
	Task       string        `json:"task"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Result     *agent.Result `json:"result"`
}

// ArtifactWriter handles writing run artifacts
type ArtifactWriter struct {
	cfg ArtifactConfig
}

// NewArtifactWriter creates a new artifact writer
func NewArtifactWriter(cfg ArtifactConfig) *ArtifactWriter {
	return &ArtifactWriter{cfg: cfg}
}

// WriteAll writes all configured artifact formats and returns the paths written.
func (w *ArtifactWriter) WriteAll(rec *RunRecord) ([]string, error) {
	if err := os.MkdirAll(w.cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var paths []string
	if w.cfg.JSON {
		path, err := w.WriteJSON(rec)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if w.cfg.Markdown {
		path, err := w.WriteMarkdown(rec)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteJSON writes the full run record as JSON
func (w *ArtifactWriter) WriteJSON(rec *RunRecord) (string, error) {
	path := filepath.Join(w.cfg.OutputDir, rec.RequestID+".json")

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run record: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0600); writeErr != nil {
		return "", fmt.Errorf("failed to write run JSON: %w", writeErr)
	}
	return path, nil
}

// WriteMarkdown writes a human-readable markdown summary
func (w *ArtifactWriter) WriteMarkdown(rec *RunRecord) (string, error) {
	path := filepath.Join(w.cfg.OutputDir, rec.RequestID+".md")
	res := rec.Result

	var md strings.Builder
	md.WriteString("# Forage Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Task:** %s\n\n", rec.Task))
	md.WriteString(fmt.Sprintf("**Request:** %s\n\n", rec.RequestID))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", rec.StartedAt.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %.2fs\n\n", res.DurationSeconds))

	md.WriteString("## Result\n\n")
	switch {
	case res.Success && !res.Partial:
		md.WriteString("✅ **Success**\n\n")
	case res.Success:
		md.WriteString("⚠️ **Partial**\n\n")
	default:
		md.WriteString("❌ **Failed**\n\n")
	}
	md.WriteString(res.Response)
	md.WriteString("\n\n")

	if len(res.Sources) > 0 {
		md.WriteString("## Sources\n\n")
		for _, s := range res.Sources {
			md.WriteString(fmt.Sprintf("- %s\n", s))
		}
		md.WriteString("\n")
	}

	if res.TokenUsage != nil {
		md.WriteString("## Usage\n\n")
		md.WriteString(fmt.Sprintf("- **Input Tokens:** %d\n", res.TokenUsage.Input))
		md.WriteString(fmt.Sprintf("- **Output Tokens:** %d\n", res.TokenUsage.Output))
		md.WriteString(fmt.Sprintf("- **Cached Tokens:** %d\n", res.TokenUsage.CacheRead))
		if res.CostUSD > 0 {
			md.WriteString(fmt.Sprintf("- **Cost:** $%.4f\n", res.CostUSD))
		}
	}

	if writeErr := os.WriteFile(path, []byte(md.String()), 0600); writeErr != nil {
		return "", fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}
	return path, nil
}
