package agent

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/forage/pkg/agent/prompts"
	"github.com/entrhq/forage/pkg/llm"
	"github.com/entrhq/forage/pkg/metrics"
	"github.com/entrhq/forage/pkg/types"
)

// UsageRecorder receives the token usage of summarization calls.
type UsageRecorder interface {
	RecordTokenUsage(types.Usage)
}

// Summarizer turns captured page content into an answer when the loop ends
// without one. Small inputs take one synthesis call; larger inputs are split
// into chunks, mapped in parallel and combined by a single reduce call.
type Summarizer struct {
	planner llm.Planner
	opts    SummarizerOptions
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewSummarizer creates a summarizer. Non-positive options fall back to defaults.
func NewSummarizer(planner llm.Planner, opts SummarizerOptions, logger *zap.Logger, m *metrics.Collector) *Summarizer {
	def := DefaultSummarizerOptions()
	if opts.SinglePassThreshold <= 0 {
		opts.SinglePassThreshold = def.SinglePassThreshold
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = def.MaxParallel
	}
	if opts.CallTimeout < 0 {
		opts.CallTimeout = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		planner: planner,
		opts:    opts,
		logger:  logger.With(zap.String("component", "summarizer")),
		metrics: m,
	}
}

// Summarize answers query from pages. It returns false when there is nothing
// to summarize or every attempt failed.
func (s *Summarizer) Summarize(ctx context.Context, query string, pages []PageContent, seenURLs []string, rec UsageRecorder) (string, bool) {
	sources := dedupeByURL(pages)
	if len(sources) == 0 {
		return "", false
	}

	size := 0
	for _, src := range sources {
		size += sourceChars(src)
	}

	if size < s.opts.SinglePassThreshold {
		out, ok := s.single(ctx, query, sources, seenURLs, rec)
		s.metrics.RecordFallback("single", ok)
		return out, ok
	}
	out, ok := s.mapReduce(ctx, query, sources, seenURLs, rec)
	s.metrics.RecordFallback("map_reduce", ok)
	return out, ok
}

func (s *Summarizer) single(ctx context.Context, query string, sources []prompts.Source, seenURLs []string, rec UsageRecorder) (string, bool) {
	req := prompts.SynthesisRequest(query, seenURLs, prompts.FormatSources(sources))
	reply, err := s.call(ctx, "synthesis", prompts.SynthesisPrompt, req)
	if reply != nil && reply.Usage != nil && rec != nil {
		rec.RecordTokenUsage(*reply.Usage)
	}
	if err != nil {
		s.logger.Warn("synthesis call failed", zap.Error(err))
		return "", false
	}
	text := strings.TrimSpace(reply.Content)
	return text, text != ""
}

type mapSlot struct {
	notes string
	usage *types.Usage
	err   error
}

func (s *Summarizer) mapReduce(ctx context.Context, query string, sources []prompts.Source, seenURLs []string, rec UsageRecorder) (string, bool) {
	chunks := chunkSources(sources, s.opts.ChunkSize)
	s.metrics.RecordFanOut("map", len(chunks))
	s.logger.Debug("summarizing in parallel", zap.Int("chunks", len(chunks)), zap.Int("sources", len(sources)))

	slots := make([]mapSlot, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxParallel)
	for i, chunk := range chunks {
		g.Go(func() error {
			req := prompts.MapRequest(query, i+1, len(chunks), prompts.FormatSources(chunk))
			reply, err := s.call(gctx, "map", prompts.MapPrompt, req)
			if reply != nil {
				slots[i].usage = reply.Usage
				slots[i].notes = strings.TrimSpace(reply.Content)
			}
			slots[i].err = err
			// failures stay in the slot so the other chunks keep running
			return nil
		})
	}
	_ = g.Wait()

	var notes []string
	for i, slot := range slots {
		if slot.usage != nil && rec != nil {
			rec.RecordTokenUsage(*slot.usage)
		}
		if slot.err != nil {
			s.logger.Warn("map call failed", zap.Int("chunk", i+1), zap.Error(slot.err))
			continue
		}
		if slot.notes != "" {
			notes = append(notes, slot.notes)
		}
	}
	if len(notes) == 0 {
		return "", false
	}

	reply, err := s.call(ctx, "reduce", prompts.ReducePrompt, prompts.ReduceRequest(query, seenURLs, notes))
	if reply != nil && reply.Usage != nil && rec != nil {
		rec.RecordTokenUsage(*reply.Usage)
	}
	if err != nil {
		s.logger.Warn("reduce call failed", zap.Error(err))
		return "", false
	}
	text := strings.TrimSpace(reply.Content)
	return text, text != ""
}

// call makes one tool-free planner call under CallTimeout.
func (s *Summarizer) call(ctx context.Context, purpose, system, user string) (*types.Message, error) {
	if s.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}
	start := time.Now()
	reply, err := s.planner.Complete(ctx, []*types.Message{
		types.NewSystemMessage(system),
		types.NewUserMessage(user),
	}, nil)
	s.metrics.RecordPlannerCall(purpose, time.Since(start), err)
	return reply, err
}

// dedupeByURL keeps the last capture of each URL at the position of its
// first appearance.
func dedupeByURL(pages []PageContent) []prompts.Source {
	index := make(map[string]int, len(pages))
	var out []prompts.Source
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if i, ok := index[p.URL]; ok {
			out[i].Text = p.Text
			continue
		}
		index[p.URL] = len(out)
		out = append(out, prompts.Source{URL: p.URL, Text: p.Text})
	}
	return out
}

// sourceHeaderChars approximates the per-source delimiter overhead.
const sourceHeaderChars = 20

func sourceChars(src prompts.Source) int {
	return utf8.RuneCountInString(src.Text) + len(src.URL) + sourceHeaderChars
}

// chunkSources groups whole sources into chunks of at most size characters.
// A source larger than size is split across chunks of its own.
func chunkSources(sources []prompts.Source, size int) [][]prompts.Source {
	var (
		chunks  [][]prompts.Source
		current []prompts.Source
		used    int
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, current)
			current, used = nil, 0
		}
	}

	for _, src := range sources {
		n := sourceChars(src)
		if n > size {
			flush()
			for _, part := range splitRunes(src.Text, max(size-len(src.URL)-sourceHeaderChars, 1)) {
				chunks = append(chunks, []prompts.Source{{URL: src.URL, Text: part}})
			}
			continue
		}
		if used+n > size {
			flush()
		}
		current = append(current, src)
		used += n
	}
	flush()
	return chunks
}

func splitRunes(s string, n int) []string {
	runes := []rune(s)
	parts := make([]string, 0, len(runes)/n+1)
	for len(runes) > 0 {
		k := min(n, len(runes))
		parts = append(parts, string(runes[:k]))
		runes = runes[k:]
	}
	return parts
}
