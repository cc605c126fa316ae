package handler

import (
	"errors"
	"net/http"

	"defendend-backend/internal/model"
	"defendend-backend/internal/provider"
	"defendend-backend/internal/service"
	"defendend-backend/internal/storage"
	"defendend-backend/internal/utils"
	"defendend-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ChatHandler struct {
	chats *service.ChatService
}

func NewChatHandler(chats *service.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// chatID 会话 ID 都是 UUID，格式不对的直接按非法参数拒绝，
// 不落到存储层查询（查不到是 404，格式错是 400，两者不混）
func chatID(c *gin.Context) (string, bool) {
	id := c.Param("chatId")
	if err := uuid.Validate(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return "", false
	}
	return id, true
}

// writeServiceError 把服务层/提供方错误统一翻译成 HTTP 状态码
func writeServiceError(c *gin.Context, err error) {
	var upstream *provider.UpstreamError

	switch {
	case errors.Is(err, storage.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, service.ErrProviderForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, provider.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, provider.ErrMissingAPIKey):
		logger.Errorf("提供方配置缺失: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "provider is not configured"})
	case errors.As(err, &upstream):
		logger.Errorf("上游调用失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upstream provider error"})
	case errors.Is(err, provider.ErrEmptyResponse):
		logger.Errorf("上游返回空响应: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "provider returned an empty response"})
	default:
		logger.Errorf("未分类错误: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req model.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	chat, err := h.chats.CreateChat(currentUser(c), req.Title, req.Provider, req.Params)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.NewChatResponse(chat))
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chats.ListChats(currentUser(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	resp := make([]model.ChatResponse, 0, len(chats))
	for _, chat := range chats {
		resp = append(resp, model.NewChatResponse(chat))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	chat, err := h.chats.GetChat(currentUser(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewChatResponse(chat))
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	if err := h.chats.DeleteChat(currentUser(c), id); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	messages, err := h.chats.GetMessages(currentUser(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if messages == nil {
		messages = []*model.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

func (h *ChatHandler) UpdateConfig(c *gin.Context) {
	var req model.UpdateChatConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id, ok := chatID(c)
	if !ok {
		return
	}

	cfg := model.ChatConfig{Provider: req.Provider}
	if req.Params != nil {
		cfg.Params = *req.Params
	}

	if err := h.chats.UpdateChatConfig(currentUser(c), id, cfg); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendMessage 缓冲路径：响应体是 [用户消息, 助手消息] 两元素数组
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id, ok := chatID(c)
	if !ok {
		return
	}

	messages, err := h.chats.SendMessage(c.Request.Context(), currentUser(c), id, req.Content, req.Params)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// StreamMessage 流式路径：进入流之前的错误还能用 JSON 返回；
// 一旦开始写 SSE，错误只能以 error 帧的形式下发
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id, ok := chatID(c)
	if !ok {
		return
	}

	events, err := h.chats.StreamMessage(c.Request.Context(), currentUser(c), id, req.Content, req.Params)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	sse := utils.NewSSEWriter(c.Writer)
	for ev := range events {
		switch ev.Type {
		case provider.EventDelta:
			if err := sse.Write("message", ev.Text); err != nil {
				// 客户端断开，静默收尾
				return
			}
		case provider.EventDone:
			if err := sse.WriteEvent("done"); err != nil {
				return
			}
		case provider.EventError:
			if err := sse.Write("error", ev.Text); err != nil {
				return
			}
		}
	}
}
