package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const (
	ProviderClaude   = "claude"
	ProviderDeepSeek = "deepseek"
)

// Message 一旦落库即不可变，排序仅依赖创建时间
type Message struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	ChatID    string    `json:"chat_id" gorm:"index;size:36"`
	Role      string    `json:"role" gorm:"size:16"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp" gorm:"index"`
}

type Chat struct {
	ID        string           `json:"id" gorm:"primaryKey;size:36"`
	UserID    string           `json:"user_id" gorm:"index;size:36"`
	Title     string           `json:"title"`
	Provider  string           `json:"provider" gorm:"size:32"`
	Params    GenerationParams `json:"params" gorm:"serializer:json"`
	Messages  []Message        `json:"messages,omitempty" gorm:"foreignKey:ChatID"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Config 返回本轮对话使用的生成配置，每一轮都重新读取
func (c *Chat) Config() ChatConfig {
	return ChatConfig{Provider: c.Provider, Params: c.Params}
}

type ChatConfig struct {
	Provider string           `json:"provider"`
	Params   GenerationParams `json:"params"`
}

type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:255"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role" gorm:"size:16"`
	// 该用户可使用的模型提供方，由管理员调整
	Providers  []string  `json:"providers" gorm:"serializer:json"`
	DailyQuota int       `json:"daily_quota"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u *User) HasProvider(name string) bool {
	for _, p := range u.Providers {
		if p == name {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
