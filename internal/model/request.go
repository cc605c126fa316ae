package model

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type CreateChatRequest struct {
	Title    string            `json:"title"`
	Provider string            `json:"provider" binding:"required"`
	Params   *GenerationParams `json:"params"`
}

type UpdateChatConfigRequest struct {
	Provider string            `json:"provider" binding:"required"`
	Params   *GenerationParams `json:"params"`
}

// SendMessageRequest params 为可选的本轮覆盖，与会话默认参数合并
type SendMessageRequest struct {
	Content string            `json:"content" binding:"required"`
	Params  *GenerationParams `json:"params"`
}

type UpdateAccessRequest struct {
	Providers  []string `json:"providers" binding:"required"`
	DailyQuota int      `json:"daily_quota"`
}
