package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"defendend-backend/internal/config"
	"defendend-backend/internal/model"
	"defendend-backend/internal/utils"
)

const (
	claudeDefaultBaseURL   = "https://api.anthropic.com"
	claudeDefaultModel     = "claude-3-5-sonnet-20241022"
	claudeDefaultMaxTokens = 8192
	claudeAPIVersion       = "2023-06-01"
	claudeDefaultTimeout   = 5 * time.Minute
)

// ClaudeClient Anthropic messages 方言的适配器。
// system 提示走原生 system 字段，max_tokens 在该方言里是必填字段
type ClaudeClient struct {
	client    *http.Client
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
}

func NewClaudeClient(cfg config.ClaudeConfig) *ClaudeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = claudeDefaultBaseURL
	}
	mdl := cfg.Model
	if mdl == "" {
		mdl = claudeDefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = claudeDefaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = claudeDefaultTimeout
	}

	return &ClaudeClient{
		client:    utils.NewHTTPClient(timeout),
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     mdl,
		maxTokens: maxTokens,
	}
}

func (c *ClaudeClient) Name() string {
	return model.ProviderClaude
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type claudeStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

func (c *ClaudeClient) newRequest(ctx context.Context, messages []model.Message, params model.GenerationParams, stream bool) (*http.Request, error) {
	system := buildSystemPrompt(params, false)
	maxTokens := c.maxTokens
	if params.MaxTokens != nil && *params.MaxTokens > 0 {
		maxTokens = *params.MaxTokens
	}

	body := claudeRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		Stream:      stream,
	}
	for _, msg := range messages {
		// 该方言的 messages 里不接受 system 角色，并入 system 字段
		if msg.Role == model.RoleSystem {
			if system == "" {
				system = msg.Content
			} else {
				system = system + "\n\n" + msg.Content
			}
			continue
		}
		body.Messages = append(body.Messages, claudeMessage{Role: msg.Role, Content: msg.Content})
	}
	body.System = system

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal claude request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create claude request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", claudeAPIVersion)
	return req, nil
}

func (c *ClaudeClient) Dispatch(ctx context.Context, messages []model.Message, params model.GenerationParams) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("claude: %w", ErrMissingAPIKey)
	}

	req, err := c.newRequest(ctx, messages, params, false)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("claude request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &UpstreamError{Provider: model.ProviderClaude, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode claude response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("claude: %w", ErrEmptyResponse)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

func (c *ClaudeClient) DispatchStream(ctx context.Context, messages []model.Message, params model.GenerationParams) (<-chan GenerationEvent, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("claude: %w", ErrMissingAPIKey)
	}

	req, err := c.newRequest(ctx, messages, params, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claude request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		upstream := &UpstreamError{Provider: model.ProviderClaude, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		return singleErrorStream(upstream.Error()), nil
	}

	events := make(chan GenerationEvent, 16)
	go consumeSSE(ctx, resp.Body, claudeDelta, events)
	return events, nil
}

// claudeDelta 归一化 content_block_delta 事件；message_stop 是该方言的终止标记
func claudeDelta(payload []byte) (string, bool) {
	var ev claudeStreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", false
	}
	switch ev.Type {
	case "content_block_delta":
		return ev.Delta.Text, false
	case "message_stop":
		return "", true
	default:
		return "", false
	}
}

var _ Client = (*ClaudeClient)(nil)
