package provider

import (
	"context"
	"fmt"

	"defendend-backend/internal/model"
)

// Coordinator 按名字查找适配器并派发。纯查表，不做重试，
// 也不在提供方之间做自动切换，失败原样上抛
type Coordinator struct {
	clients map[string]Client
}

func NewCoordinator(clients ...Client) *Coordinator {
	m := make(map[string]Client, len(clients))
	for _, c := range clients {
		m[c.Name()] = c
	}
	return &Coordinator{clients: m}
}

func (c *Coordinator) lookup(name string) (Client, error) {
	client, ok := c.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return client, nil
}

func (c *Coordinator) Send(ctx context.Context, name string, messages []model.Message, params model.GenerationParams) (string, error) {
	client, err := c.lookup(name)
	if err != nil {
		return "", err
	}
	return client.Dispatch(ctx, messages, params)
}

func (c *Coordinator) SendStream(ctx context.Context, name string, messages []model.Message, params model.GenerationParams) (<-chan GenerationEvent, error) {
	client, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return client.DispatchStream(ctx, messages, params)
}

// MergeParams 把本轮覆盖合并到会话默认参数上，override 为 nil 时原样返回
func MergeParams(base model.GenerationParams, override *model.GenerationParams) model.GenerationParams {
	if override == nil {
		return base
	}
	merged := base
	if override.Temperature != nil {
		merged.Temperature = override.Temperature
	}
	if override.MaxTokens != nil {
		merged.MaxTokens = override.MaxTokens
	}
	if override.TopP != nil {
		merged.TopP = override.TopP
	}
	if override.SystemPrompt != "" {
		merged.SystemPrompt = override.SystemPrompt
	}
	if override.OutputFormat != "" {
		merged.OutputFormat = override.OutputFormat
	}
	if override.OutputSchema != "" {
		merged.OutputSchema = override.OutputSchema
	}
	if !override.Directives.Empty() {
		merged.Directives = override.Directives
	}
	return merged
}
