package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenRouterBaseURL is the public OpenRouter API root
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// maxErrorBody bounds how much of a failed response body is kept
const maxErrorBody = 4 << 10

// OpenRouterOptions configures the HTTP side of an OpenRouterClient
type OpenRouterOptions struct {
	BaseURL    string
	AppTitle   string
	Referer    string
	HTTPClient *http.Client
}

// OpenRouterClient implements Client against an OpenAI-compatible
// chat completions API.
type OpenRouterClient struct {
	apiKey   string
	baseURL  string
	appTitle string
	referer  string
	config   *Config
	httpDo   *http.Client
}

// NewOpenRouterClient creates a new OpenRouter client
func NewOpenRouterClient(config *Config, apiKey string, opts OpenRouterOptions) (*OpenRouterClient, error) {
	if apiKey == "" {
		return nil, &ProviderError{Provider: string(ProviderOpenRouter), Kind: KindAuth, Message: "API key is required"}
	}
	if config == nil {
		config = DefaultOpenRouterConfig()
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &OpenRouterClient{
		apiKey:   apiKey,
		baseURL:  baseURL,
		appTitle: opts.AppTitle,
		referer:  opts.Referer,
		config:   config,
		httpDo:   httpClient,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionsRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type chatCompletionsResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// GenerateContent generates text content using the specified model tier
func (c *OpenRouterClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return c.complete(ctx, prompt, tier, false)
}

// GenerateJSON generates JSON content using the specified model tier
func (c *OpenRouterClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	text, err := c.complete(ctx, prompt, tier, true)
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(text), nil
}

// GetModel returns the model name for a tier
func (c *OpenRouterClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close is a no-op; the HTTP client holds no exclusive resources
func (c *OpenRouterClient) Close() error {
	return nil
}

func (c *OpenRouterClient) complete(ctx context.Context, prompt string, tier ModelTier, jsonMode bool) (string, error) {
	name := string(ProviderOpenRouter)
	model := c.config.GetModel(tier)
	if model == "" {
		return "", &ProviderError{Provider: name, Kind: KindBadRequest, Message: fmt.Sprintf("no model configured for tier %s", tier)}
	}

	reqBody := chatCompletionsRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.1,
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.appTitle != "" {
		httpReq.Header.Set("X-Title", c.appTitle)
	}

	resp, err := c.httpDo.Do(httpReq)
	if err != nil {
		return "", Classify(name, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &ProviderError{
			Provider:   name,
			Kind:       KindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       string(body),
		}
	}

	var out chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{Provider: name, Kind: KindInvalidOutput, Message: "malformed response body", Cause: err}
	}
	if len(out.Choices) == 0 {
		return "", &ProviderError{Provider: name, Kind: KindInvalidOutput, Message: "no choices returned by model"}
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", &ProviderError{Provider: name, Kind: KindInvalidOutput, Message: "empty completion"}
	}
	return content, nil
}
