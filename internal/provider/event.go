package provider

import (
	"context"

	"defendend-backend/internal/model"
)

// EventType GenerationEvent 的标签。所有提供方适配器都必须把各自的
// 线上格式归一化成这三种事件，消费侧不感知上游差异
type EventType int

const (
	EventDelta EventType = iota
	EventDone
	EventError
)

// GenerationEvent 内部统一的流式事件
type GenerationEvent struct {
	Type EventType
	// Delta 时为增量文本，Error 时为错误信息，Done 时为空
	Text string
}

// Client 单个上游提供方的适配器
type Client interface {
	Name() string

	// Dispatch 缓冲模式：等待完整响应并返回全部文本
	Dispatch(ctx context.Context, messages []model.Message, params model.GenerationParams) (string, error)

	// DispatchStream 流式模式：返回的通道以 Done 或 Error 事件收尾后关闭。
	// HTTP 状态非 2xx 时通道里只有一个 Error 事件，不会出现任何 Delta
	DispatchStream(ctx context.Context, messages []model.Message, params model.GenerationParams) (<-chan GenerationEvent, error)
}
