// Package openai implements the planner against OpenAI-compatible
// chat-completions APIs using tool calling.
//
// Example usage:
//
//	cfg := openai.DefaultConfig()
//	cfg.APIKey = os.Getenv("OPENAI_API_KEY")
//	provider, err := openai.NewProvider(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	reply, err := provider.Complete(ctx, messages, executor.Definitions())
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/entrhq/forage/pkg/llm"
	"github.com/entrhq/forage/pkg/llm/parser"
	"github.com/entrhq/forage/pkg/types"
)

// visionMaxTokens caps the screenshot description.
const visionMaxTokens = 400

// Provider implements llm.Planner for OpenAI-compatible APIs.
type Provider struct {
	client  openai.Client
	cfg     Config
	price   Price
	priced  bool
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ llm.Planner = (*Provider)(nil)

// NewProvider creates a provider from cfg. The SDK's own retries are
// disabled; transient failures are retried here with exponential backoff.
func NewProvider(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set planner.api_key or OPENAI_API_KEY)")
	}

	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Provider{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
		),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "planner"), zap.String("model", cfg.Model)),
	}

	if cfg.Pricing != nil {
		p.price, p.priced = *cfg.Pricing, true
	} else {
		p.price, p.priced = LookupPrice(cfg.Model)
	}
	if !p.priced {
		p.logger.Warn("no price known for model, cost will be reported as zero")
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return p, nil
}

// Model returns the planning model name.
func (p *Provider) Model() string {
	return p.cfg.Model
}

// Complete sends the transcript with the tool vocabulary and returns the
// assistant reply.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message, tools []types.ToolDefinition) (*types.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.cfg.Model),
		Messages: toParams(messages),
	}
	if len(tools) > 0 {
		params.Tools = toToolParams(tools)
		params.ParallelToolCalls = openai.Bool(true)
	}

	resp, err := p.create(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, llm.ErrNoChoices
	}

	msg := fromResponse(resp.Choices[0].Message)
	usage := p.usage(resp.Usage)
	msg.Usage = &usage

	p.logger.Debug("planner call completed",
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Int("tool_calls", len(msg.ToolCalls)),
		zap.String("finish_reason", resp.Choices[0].FinishReason))
	return msg, nil
}

// AnalyzeImage asks the vision model to describe an image.
func (p *Provider) AnalyzeImage(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.cfg.VisionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    dataURL,
					Detail: "low",
				}),
			}),
		},
		MaxCompletionTokens: openai.Int(visionMaxTokens),
	}

	resp, err := p.create(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", llm.ErrNoChoices
	}
	_, answer := parser.SplitReasoning(resp.Choices[0].Message.Content)
	return answer, nil
}

func (p *Provider) create(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	resp, err := retry(ctx, p.cfg, p.logger, func(ctx context.Context) (*openai.ChatCompletion, error) {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}
		return p.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	return resp, nil
}

func (p *Provider) usage(u openai.CompletionUsage) types.Usage {
	usage := types.Usage{
		InputTokens:     int(u.PromptTokens),
		OutputTokens:    int(u.CompletionTokens),
		ReasoningTokens: int(u.CompletionTokensDetails.ReasoningTokens),
		CacheReadTokens: int(u.PromptTokensDetails.CachedTokens),
	}
	if p.priced {
		usage.CostUSD = p.price.Cost(usage)
	}
	return usage
}

// toParams converts transcript messages to the SDK's message unions.
func toParams(messages []*types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			out = append(out, assistantParam(msg))
		case types.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func assistantParam(msg *types.Message) openai.ChatCompletionMessageParamUnion {
	if !msg.HasToolCalls() {
		return openai.AssistantMessage(msg.Content)
	}

	asst := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		asst.Content.OfString = openai.String(msg.Content)
	}
	asst.ToolCalls = make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: tc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
}

func toToolParams(defs []types.ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  openai.FunctionParameters(d.Parameters),
			},
		})
	}
	return out
}

// fromResponse converts the SDK reply to a transcript message. Reasoning
// that some compatible models inline in the content is kept out of the
// transcript and attached as metadata.
func fromResponse(m openai.ChatCompletionMessage) *types.Message {
	reasoning, answer := parser.SplitReasoning(m.Content)
	if answer == "" && m.Refusal != "" {
		answer = m.Refusal
	}

	msg := types.NewAssistantMessage(answer)
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      strings.TrimSpace(tc.Function.Name),
			Arguments: tc.Function.Arguments,
		})
	}
	if reasoning != "" {
		msg.WithMetadata("reasoning", reasoning)
	}
	return msg
}
