package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/andybalholm/cascadia"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/pevans/sleuth"
)

// DefaultModel is used when the configuration doesn't name one.
const DefaultModel = openai.GPT4oMini

// Config carries the model-provider settings for an Agent.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional; for OpenAI-compatible providers
}

// Agent proposes tiered CSS selector candidates by showing cleaned HTML to a
// language model. It is stateless between calls and safe for concurrent use;
// token accounting is returned to the caller rather than accumulated here.
type Agent struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewAgent builds a discovery agent from provider settings.
func NewAgent(cfg Config, logger *zap.Logger) (*Agent, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("discovery agent requires an API key")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Agent{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger,
	}, nil
}

// Discover asks the model for selector candidates for every recognized field.
// The cleaned HTML must already be capped to the prompt budget; the agent
// sends it verbatim. The returned set always covers exactly the recognized
// fields, with nil tiers where the model declared a field not applicable.
func (a *Agent) Discover(ctx context.Context, url, cleanedHTML string) (sleuth.CandidateSet, sleuth.TokenUsage, error) {
	var usage sleuth.TokenUsage

	resp, err := a.client.CreateChatCompletion(ctx, a.chatRequest(url, cleanedHTML))
	if err != nil {
		return nil, usage, &sleuth.DiscoveryError{Kind: sleuth.DiscoveryModelFailure, Err: err}
	}

	usage.Prompt = resp.Usage.PromptTokens
	usage.Completion = resp.Usage.CompletionTokens

	if len(resp.Choices) == 0 {
		return nil, usage, &sleuth.DiscoveryError{
			Kind: sleuth.DiscoveryModelFailure,
			Err:  fmt.Errorf("response contained no choices"),
		}
	}

	set, err := parseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		a.logger.Warn("discovery response rejected",
			zap.String("url", url),
			zap.Error(err))
		return nil, usage, err
	}

	a.logger.Debug("discovery complete",
		zap.String("url", url),
		zap.Int("prompt_tokens", usage.Prompt),
		zap.Int("completion_tokens", usage.Completion))

	return set, usage, nil
}

// chatRequest builds the completion request. Temperature is pinned to the
// smallest nonzero float rather than 0: the client omits zero-valued fields
// when serializing, so a literal 0 would leave the provider default in
// effect instead of requesting deterministic output.
func (a *Agent) chatRequest(url, cleanedHTML string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(url, cleanedHTML)},
		},
	}
}

// rawCandidates mirrors the JSON shape the model is instructed to return for
// one field. String pointers distinguish absent keys from empty values.
type rawCandidates struct {
	Primary  *string `json:"primary"`
	Fallback *string `json:"fallback"`
	Tertiary *string `json:"tertiary"`
}

// parseResponse turns the model's text into a validated candidate set.
// Anything off-shape is a schema violation: the key set must be exactly the
// recognized fields, and every proposed selector must compile.
func parseResponse(content string) (sleuth.CandidateSet, error) {
	cleaned := stripFences(content)

	var raw map[string]rawCandidates
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, &sleuth.DiscoveryError{
			Kind: sleuth.DiscoverySchemaViolation,
			Err:  fmt.Errorf("response is not valid JSON: %w", err),
		}
	}

	known := make(map[string]bool, len(sleuth.Fields()))
	for _, field := range sleuth.Fields() {
		known[field] = true
	}

	for field := range raw {
		if !known[field] {
			return nil, &sleuth.DiscoveryError{
				Kind: sleuth.DiscoverySchemaViolation,
				Err:  fmt.Errorf("unknown field %q in response", field),
			}
		}
	}

	set := make(sleuth.CandidateSet, len(known))
	for _, field := range sleuth.Fields() {
		rc, ok := raw[field]
		if !ok {
			return nil, &sleuth.DiscoveryError{
				Kind: sleuth.DiscoverySchemaViolation,
				Err:  fmt.Errorf("response is missing field %q", field),
			}
		}

		c := sleuth.Candidates{
			Primary:  normalizeSelector(rc.Primary),
			Fallback: normalizeSelector(rc.Fallback),
			Tertiary: normalizeSelector(rc.Tertiary),
		}
		for _, sel := range []*string{c.Primary, c.Fallback, c.Tertiary} {
			if sel == nil {
				continue
			}
			if _, err := cascadia.Compile(*sel); err != nil {
				return nil, &sleuth.DiscoveryError{
					Kind: sleuth.DiscoverySchemaViolation,
					Err:  fmt.Errorf("field %q: invalid selector %q: %w", field, *sel, err),
				}
			}
		}
		set[field] = c
	}

	return set, nil
}

// normalizeSelector maps the model's "not applicable" spellings to nil and
// trims whitespace from real selectors.
func normalizeSelector(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	switch {
	case trimmed == "":
		return nil
	case strings.EqualFold(trimmed, "NA"):
		return nil
	case strings.EqualFold(trimmed, "null"):
		return nil
	case strings.EqualFold(trimmed, "none"):
		return nil
	}
	return &trimmed
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one despite being told not to.
func stripFences(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
