package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"devloop/pkg/logx"
)

const defaultMaxTokens = 16384

// ClaudeGateway implements Gateway against the Anthropic Messages API.
type ClaudeGateway struct {
	client anthropic.Client
	logger *logx.Logger
	model  anthropic.Model
}

// NewClaudeGateway creates a gateway for the given API key and model.
func NewClaudeGateway(apiKey, model string) *ClaudeGateway {
	return &ClaudeGateway{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		logger: logx.NewLogger("gateway"),
	}
}

// Invoke sends one phase prompt to the agent and returns its transcript.
// The phase timeout is enforced through the context deadline; a deadline
// hit surfaces as a classified timeout error.
func (g *ClaudeGateway) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	if strings.TrimSpace(inv.Prompt) == "" {
		return nil, NewError(ErrorTypeBadPrompt, "empty prompt")
	}

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	model := g.model
	if inv.Model != "" {
		model = anthropic.Model(inv.Model)
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(inv.Prompt)),
		},
	}
	if system := g.systemPrompt(inv); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	g.logger.Debug("Invoking agent: model=%s timeout=%s capabilities=%v",
		model, inv.Timeout, inv.Capabilities)

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		classified := Classify(err)
		g.logger.Warn("Agent invocation failed (%s): %v", classified.Type, err)
		return nil, classified
	}
	if resp == nil || len(resp.Content) == 0 {
		return nil, NewError(ErrorTypeTransient, "received empty response from agent")
	}

	var transcript strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			transcript.WriteString(block.AsText().Text)
		}
	}

	result := &Result{
		Transcript: transcript.String(),
		StopReason: string(resp.StopReason),
	}
	if summary, err := ParseTestSummary(result.Transcript); err == nil {
		result.TestSummary = summary
	}
	return result, nil
}

// systemPrompt combines the caller's framing with the capability allow-list
// and working directory so the agent knows its boundaries.
func (g *ClaudeGateway) systemPrompt(inv Invocation) string {
	var parts []string
	if inv.SystemPrompt != "" {
		parts = append(parts, inv.SystemPrompt)
	}
	if len(inv.Capabilities) > 0 {
		parts = append(parts, fmt.Sprintf("Allowed tools for this phase: %s. Do not use any other tool.",
			strings.Join(inv.Capabilities, ", ")))
	}
	if inv.WorkDir != "" {
		parts = append(parts, fmt.Sprintf("Working directory: %s", inv.WorkDir))
	}
	return strings.Join(parts, "\n\n")
}
