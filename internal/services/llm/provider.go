package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ternarybob/dashnote/internal/common"
	"github.com/ternarybob/dashnote/internal/interfaces"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
	// ProviderOpenAI uses the OpenAI Responses API
	ProviderOpenAI ProviderType = "openai"
)

// ContentRequest represents a provider-agnostic content generation request
type ContentRequest struct {
	Messages          []interfaces.Message
	Model             string
	Temperature       float32
	MaxTokens         int
	SystemInstruction string
	OutputSchema      map[string]interface{} // JSON schema for structured output
	SchemaName        string                 // Schema name, required by the OpenAI JSON schema format
}

// ContentResponse represents a provider-agnostic content generation response
type ContentResponse struct {
	Text     string
	Provider ProviderType
	Model    string
}

// ProviderFactory creates provider clients lazily and routes requests to
// them. Each provider has its own rate limiter.
type ProviderFactory struct {
	config   *common.Config
	logger   arbor.ILogger
	retry    *RetryConfig
	mu       sync.Mutex
	limiters map[ProviderType]*rate.Limiter

	geminiClient *genai.Client
	claudeClient *anthropic.Client
	openaiClient *openai.Client
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(config *common.Config, logger arbor.ILogger) *ProviderFactory {
	retry := NewDefaultRetryConfig()
	if config.LLM.MaxRetries >= 0 {
		retry.MaxRetries = config.LLM.MaxRetries
	}

	return &ProviderFactory{
		config: config,
		logger: logger,
		retry:  retry,
		limiters: map[ProviderType]*rate.Limiter{
			ProviderClaude: newLimiter(config.Claude.RateLimit),
			ProviderGemini: newLimiter(config.Gemini.RateLimit),
			ProviderOpenAI: newLimiter(config.OpenAI.RateLimit),
		},
	}
}

// newLimiter allows one call per interval with no burst. An empty or
// zero interval disables limiting.
func newLimiter(interval string) *rate.Limiter {
	d := common.Duration(interval, 0)
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-sonnet-4-5" or "claude/claude-sonnet-4-5" -> Claude
// - "gemini-2.5-flash" or "google/gemini-2.5-flash" -> Gemini
// - "gpt-4.1-mini", "o4-mini" or "openai/gpt-4.1-mini" -> OpenAI
// - Empty string -> uses default provider from config
func (f *ProviderFactory) DetectProvider(model string) ProviderType {
	if model == "" {
		return ProviderType(f.config.LLM.DefaultProvider)
	}

	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "claude/"), strings.HasPrefix(model, "anthropic/"), strings.HasPrefix(model, "claude-"):
		return ProviderClaude
	case strings.HasPrefix(model, "gemini/"), strings.HasPrefix(model, "google/"), strings.HasPrefix(model, "gemini-"):
		return ProviderGemini
	case strings.HasPrefix(model, "openai/"), strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return ProviderOpenAI
	}

	return ProviderType(f.config.LLM.DefaultProvider)
}

// NormalizeModel removes provider prefix from model name if present
func (f *ProviderFactory) NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/", "openai/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// GetDefaultModel returns the default model for a provider
func (f *ProviderFactory) GetDefaultModel(provider ProviderType) string {
	switch provider {
	case ProviderClaude:
		return f.config.Claude.Model
	case ProviderOpenAI:
		return f.config.OpenAI.Model
	default:
		return f.config.Gemini.Model
	}
}

// GetGeminiClient returns a Gemini client, creating one if necessary
func (f *ProviderFactory) GetGeminiClient(ctx context.Context) (*genai.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.geminiClient != nil {
		return f.geminiClient, nil
	}

	apiKey, err := common.ResolveAPIKey(common.LLMProviderGemini, f.config.Gemini.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	f.geminiClient = client
	return client, nil
}

// GetClaudeClient returns a Claude client, creating one if necessary
func (f *ProviderFactory) GetClaudeClient() (*anthropic.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.claudeClient != nil {
		return f.claudeClient, nil
	}

	apiKey, err := common.ResolveAPIKey(common.LLMProviderClaude, f.config.Claude.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	f.claudeClient = &client
	return f.claudeClient, nil
}

// GetOpenAIClient returns an OpenAI client, creating one if necessary
func (f *ProviderFactory) GetOpenAIClient() (*openai.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.openaiClient != nil {
		return f.openaiClient, nil
	}

	apiKey, err := common.ResolveAPIKey(common.LLMProviderOpenAI, f.config.OpenAI.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve OpenAI API key: %w", err)
	}

	opts := []openaioption.RequestOption{openaioption.WithAPIKey(apiKey)}
	if f.config.OpenAI.BaseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(f.config.OpenAI.BaseURL))
	}
	client := openai.NewClient(opts...)

	f.openaiClient = &client
	return f.openaiClient, nil
}

// GenerateContent generates content using the appropriate provider based on model
func (f *ProviderFactory) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	provider := f.DetectProvider(request.Model)
	model := f.NormalizeModel(request.Model)

	f.logger.Debug().
		Str("provider", string(provider)).
		Str("model", model).
		Int("message_count", len(request.Messages)).
		Msg("Generating content with provider")

	switch provider {
	case ProviderClaude:
		return f.generateWithClaude(ctx, request, model)
	case ProviderOpenAI:
		return f.generateWithOpenAI(ctx, request, model)
	default:
		return f.generateWithGemini(ctx, request, model)
	}
}

// withRetry runs call under the provider's rate limiter, retrying rate limit
// and server errors until the retry budget or the context runs out.
func (f *ProviderFactory) withRetry(ctx context.Context, provider ProviderType, call func() error) error {
	limiter := f.limiters[provider]

	var apiErr error
	for attempt := 0; attempt <= f.retry.MaxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		apiErr = call()
		if apiErr == nil {
			return nil
		}

		if attempt == f.retry.MaxRetries || !IsRetryable(apiErr) {
			break
		}

		backoff := f.retry.backoffFor(attempt, apiErr)
		f.logger.Warn().
			Str("provider", string(provider)).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying API call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s API call failed: %w", provider, apiErr)
}

// generateWithClaude generates content using Claude API
func (f *ProviderFactory) generateWithClaude(ctx context.Context, request *ContentRequest, model string) (*ContentResponse, error) {
	client, err := f.GetClaudeClient()
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = f.config.Claude.Model
	}

	claudeMessages, systemText, err := convertMessagesToClaude(request.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if request.SystemInstruction != "" {
		systemText = request.SystemInstruction
	}
	// Claude has no schema mode; the schema is appended to the instructions
	if len(request.OutputSchema) > 0 {
		systemText = appendSchemaInstruction(systemText, request.OutputSchema)
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = f.config.Claude.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  claudeMessages,
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = f.config.Claude.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	var resp *anthropic.Message
	err = f.withRetry(ctx, ProviderClaude, func() error {
		var callErr error
		resp, callErr = client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	return &ContentResponse{
		Text:     text.String(),
		Provider: ProviderClaude,
		Model:    model,
	}, nil
}

// generateWithGemini generates content using Gemini API
func (f *ProviderFactory) generateWithGemini(ctx context.Context, request *ContentRequest, model string) (*ContentResponse, error) {
	client, err := f.GetGeminiClient(ctx)
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = f.config.Gemini.Model
	}

	geminiContents, systemText, err := convertMessagesToGemini(request.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if request.SystemInstruction != "" {
		systemText = request.SystemInstruction
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = f.config.Gemini.Temperature
	}
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = f.config.Gemini.MaxTokens
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temp),
		MaxOutputTokens: int32(maxTokens),
	}

	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	// When schema is provided, Gemini enforces JSON output matching the schema
	if len(request.OutputSchema) > 0 {
		genaiSchema, err := convertToGenaiSchema(request.OutputSchema)
		if err != nil {
			f.logger.Error().Err(err).Msg("Failed to convert output schema")
		} else if genaiSchema != nil {
			config.ResponseMIMEType = "application/json"
			config.ResponseSchema = genaiSchema
		}
	}

	var resp *genai.GenerateContentResponse
	err = f.withRetry(ctx, ProviderGemini, func() error {
		var callErr error
		resp, callErr = client.Models.GenerateContent(ctx, model, geminiContents, config)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	responseText := resp.Text()
	if responseText == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	return &ContentResponse{
		Text:     responseText,
		Provider: ProviderGemini,
		Model:    model,
	}, nil
}

// generateWithOpenAI generates content using the OpenAI Responses API
func (f *ProviderFactory) generateWithOpenAI(ctx context.Context, request *ContentRequest, model string) (*ContentResponse, error) {
	client, err := f.GetOpenAIClient()
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = f.config.OpenAI.Model
	}

	items, systemText, err := convertMessagesToOpenAI(request.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if request.SystemInstruction != "" {
		systemText = request.SystemInstruction
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = f.config.OpenAI.MaxTokens
	}

	params := responses.ResponseNewParams{
		Model:           model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: items,
		},
	}
	if systemText != "" {
		params.Instructions = openai.String(systemText)
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = f.config.OpenAI.Temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(float64(temp))
	}

	if len(request.OutputSchema) > 0 {
		name := request.SchemaName
		if name == "" {
			name = "result"
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   name,
					Schema: request.OutputSchema,
					Strict: openai.Bool(true),
					Type:   "json_schema",
				},
			},
		}
	}

	var resp *responses.Response
	err = f.withRetry(ctx, ProviderOpenAI, func() error {
		var callErr error
		resp, callErr = client.Responses.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	text := resp.OutputText()
	if text == "" {
		return nil, fmt.Errorf("empty response from OpenAI API")
	}

	return &ContentResponse{
		Text:     text,
		Provider: ProviderOpenAI,
		Model:    model,
	}, nil
}

// Close releases all provider clients
func (f *ProviderFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.geminiClient = nil
	f.claudeClient = nil
	f.openaiClient = nil
	return nil
}
