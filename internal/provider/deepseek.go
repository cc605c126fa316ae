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
	deepseekDefaultBaseURL = "https://api.deepseek.com"
	deepseekDefaultModel   = "deepseek-chat"
	deepseekDefaultTimeout = 5 * time.Minute
)

// DeepSeekClient chat-completions 方言的适配器。
// 没有原生 system 字段，system 提示作为首条 system 角色消息注入；
// max_tokens 缺省时不发送，交给提供方默认值
type DeepSeekClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
	model   string
}

func NewDeepSeekClient(cfg config.DeepSeekConfig) *DeepSeekClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = deepseekDefaultBaseURL
	}
	mdl := cfg.Model
	if mdl == "" {
		mdl = deepseekDefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = deepseekDefaultTimeout
	}

	return &DeepSeekClient{
		client:  utils.NewHTTPClient(timeout),
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   mdl,
	}
}

func (c *DeepSeekClient) Name() string {
	return model.ProviderDeepSeek
}

type deepseekRequest struct {
	Model          string                  `json:"model"`
	Messages       []deepseekMessage       `json:"messages"`
	Temperature    *float64                `json:"temperature,omitempty"`
	TopP           *float64                `json:"top_p,omitempty"`
	MaxTokens      *int                    `json:"max_tokens,omitempty"`
	Stream         bool                    `json:"stream,omitempty"`
	ResponseFormat *deepseekResponseFormat `json:"response_format,omitempty"`
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepseekResponseFormat struct {
	Type string `json:"type"`
}

type deepseekResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type deepseekStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *DeepSeekClient) newRequest(ctx context.Context, messages []model.Message, params model.GenerationParams, stream bool) (*http.Request, error) {
	// 该提供方有原生 JSON 响应格式开关，json 模式不注入提示词
	system := buildSystemPrompt(params, true)

	body := deepseekRequest{
		Model:       c.model,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		Stream:      stream,
	}
	if params.MaxTokens != nil && *params.MaxTokens > 0 {
		body.MaxTokens = params.MaxTokens
	}
	if params.OutputFormat == model.OutputJSON {
		body.ResponseFormat = &deepseekResponseFormat{Type: "json_object"}
	}
	if system != "" {
		body.Messages = append(body.Messages, deepseekMessage{Role: model.RoleSystem, Content: system})
	}
	for _, msg := range messages {
		body.Messages = append(body.Messages, deepseekMessage{Role: msg.Role, Content: msg.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal deepseek request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create deepseek request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

func (c *DeepSeekClient) Dispatch(ctx context.Context, messages []model.Message, params model.GenerationParams) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("deepseek: %w", ErrMissingAPIKey)
	}

	req, err := c.newRequest(ctx, messages, params, false)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepseek request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &UpstreamError{Provider: model.ProviderDeepSeek, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed deepseekResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode deepseek response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("deepseek: %w", ErrEmptyResponse)
	}

	return parsed.Choices[0].Message.Content, nil
}

func (c *DeepSeekClient) DispatchStream(ctx context.Context, messages []model.Message, params model.GenerationParams) (<-chan GenerationEvent, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("deepseek: %w", ErrMissingAPIKey)
	}

	req, err := c.newRequest(ctx, messages, params, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepseek request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		upstream := &UpstreamError{Provider: model.ProviderDeepSeek, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		return singleErrorStream(upstream.Error()), nil
	}

	events := make(chan GenerationEvent, 16)
	go consumeSSE(ctx, resp.Body, deepseekDelta, events)
	return events, nil
}

// deepseekDelta 归一化 choices 数组里的增量；终止靠 [DONE] 哨兵
func deepseekDelta(payload []byte) (string, bool) {
	var chunk deepseekStreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, false
}

var _ Client = (*DeepSeekClient)(nil)
