package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"defendend-backend/internal/model"
	"defendend-backend/internal/provider"
	"defendend-backend/internal/storage"
	"defendend-backend/pkg/logger"

	"github.com/google/uuid"
)

// ChatService 负责一轮对话的编排：
// 取会话配置 → 先落用户消息 → 派发 → 落助手消息 / 推事件流。
// 会话配置每一轮都重新读取，两轮之间参数可能被改过
type ChatService struct {
	storage     storage.Storage
	coordinator *provider.Coordinator
}

func NewChatService(store storage.Storage, coordinator *provider.Coordinator) *ChatService {
	return &ChatService{
		storage:     store,
		coordinator: coordinator,
	}
}

func (s *ChatService) CreateChat(user *model.User, title, providerName string, params *model.GenerationParams) (*model.Chat, error) {
	if !user.HasProvider(providerName) {
		return nil, fmt.Errorf("%w: %s", ErrProviderForbidden, providerName)
	}

	if title == "" {
		title = "新对话 " + time.Now().Format("2006-01-02 15:04")
	}

	chat := &model.Chat{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Title:     title,
		Provider:  providerName,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if params != nil {
		chat.Params = *params
	}

	if err := s.storage.CreateChat(chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return chat, nil
}

func (s *ChatService) GetChat(user *model.User, chatID string) (*model.Chat, error) {
	chat, err := s.storage.GetChat(chatID)
	if err != nil {
		return nil, err
	}
	// 不暴露他人会话的存在性
	if chat.UserID != user.ID {
		return nil, storage.ErrChatNotFound
	}
	return chat, nil
}

func (s *ChatService) ListChats(user *model.User) ([]*model.Chat, error) {
	return s.storage.ListChats(user.ID)
}

func (s *ChatService) DeleteChat(user *model.User, chatID string) error {
	if _, err := s.GetChat(user, chatID); err != nil {
		return err
	}
	return s.storage.DeleteChat(chatID)
}

func (s *ChatService) GetMessages(user *model.User, chatID string) ([]*model.Message, error) {
	if _, err := s.GetChat(user, chatID); err != nil {
		return nil, err
	}
	return s.storage.LoadMessages(chatID)
}

func (s *ChatService) UpdateChatConfig(user *model.User, chatID string, cfg model.ChatConfig) error {
	if !user.HasProvider(cfg.Provider) {
		return fmt.Errorf("%w: %s", ErrProviderForbidden, cfg.Provider)
	}
	if _, err := s.GetChat(user, chatID); err != nil {
		return err
	}
	return s.storage.UpdateChatConfig(chatID, cfg)
}

// prepareTurn 缓冲和流式共用的前半段：权限校验、先持久化用户消息、
// 组装上下文和合并后的生成参数。用户消息在派发之前落库，
// 生成中途崩溃也不会丢用户输入
func (s *ChatService) prepareTurn(user *model.User, chatID, content string, overrides *model.GenerationParams) (*model.Chat, []*model.Message, model.GenerationParams, error) {
	var params model.GenerationParams

	chat, err := s.GetChat(user, chatID)
	if err != nil {
		return nil, nil, params, err
	}
	if !user.HasProvider(chat.Provider) {
		return nil, nil, params, fmt.Errorf("%w: %s", ErrProviderForbidden, chat.Provider)
	}

	if _, err := s.storage.AppendMessage(chatID, model.RoleUser, content); err != nil {
		return nil, nil, params, fmt.Errorf("failed to persist user message: %w", err)
	}

	history, err := s.storage.LoadMessages(chatID)
	if err != nil {
		return nil, nil, params, fmt.Errorf("failed to load messages: %w", err)
	}

	cfg := chat.Config()
	params = provider.MergeParams(cfg.Params, overrides)
	return chat, history, params, nil
}

// SendMessage 缓冲路径：等完整响应，落助手消息，把两条新消息一并返回
func (s *ChatService) SendMessage(ctx context.Context, user *model.User, chatID, content string, overrides *model.GenerationParams) ([]model.Message, error) {
	chat, history, params, err := s.prepareTurn(user, chatID, content, overrides)
	if err != nil {
		return nil, err
	}
	userMsg := history[len(history)-1]

	text, err := s.coordinator.Send(ctx, chat.Provider, deref(history), params)
	if err != nil {
		// 提供方错误不重试不降级，原样上抛，由 handler 统一翻译
		return nil, err
	}

	assistantMsg, err := s.storage.AppendMessage(chatID, model.RoleAssistant, text)
	if err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}
	if err := s.storage.TouchChat(chatID); err != nil {
		logger.Warnf("刷新会话更新时间失败: %v", err)
	}

	return []model.Message{*userMsg, *assistantMsg}, nil
}

// StreamMessage 流式路径：把上游事件透传给调用方；本地累积全部增量，
// 收到 Done 时先落完整的助手消息再转发 Done；收到 Error 时不落任何
// 助手消息，失败的生成在历史里不留半截痕迹
func (s *ChatService) StreamMessage(ctx context.Context, user *model.User, chatID, content string, overrides *model.GenerationParams) (<-chan provider.GenerationEvent, error) {
	chat, history, params, err := s.prepareTurn(user, chatID, content, overrides)
	if err != nil {
		return nil, err
	}
	params.Stream = true

	upstream, err := s.coordinator.SendStream(ctx, chat.Provider, deref(history), params)
	if err != nil {
		return nil, err
	}

	out := make(chan provider.GenerationEvent, 16)
	go func() {
		defer close(out)

		var full strings.Builder
		for ev := range upstream {
			switch ev.Type {
			case provider.EventDelta:
				full.WriteString(ev.Text)
			case provider.EventDone:
				if _, err := s.storage.AppendMessage(chatID, model.RoleAssistant, full.String()); err != nil {
					logger.Errorf("落库助手消息失败: %v", err)
					s.forward(ctx, out, provider.GenerationEvent{Type: provider.EventError, Text: "failed to persist assistant message"})
					return
				}
				if err := s.storage.TouchChat(chatID); err != nil {
					logger.Warnf("刷新会话更新时间失败: %v", err)
				}
			case provider.EventError:
				logger.Errorf("provider %s 流式生成失败: %s", chat.Provider, ev.Text)
			}
			if !s.forward(ctx, out, ev) {
				// 调用方已放弃（客户端断开），静默终止，不再消费上游
				return
			}
			if ev.Type != provider.EventDelta {
				return
			}
		}
	}()

	return out, nil
}

// forward 客户端断开时 ctx 会被取消，避免对已无人消费的通道死等
func (s *ChatService) forward(ctx context.Context, out chan<- provider.GenerationEvent, ev provider.GenerationEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func deref(messages []*model.Message) []model.Message {
	result := make([]model.Message, len(messages))
	for i, msg := range messages {
		result[i] = *msg
	}
	return result
}
