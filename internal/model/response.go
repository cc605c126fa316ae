package model

import "time"

type TokenResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

type ChatResponse struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Provider     string           `json:"provider"`
	Params       GenerationParams `json:"params"`
	MessageCount int              `json:"message_count"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func NewChatResponse(c *Chat) ChatResponse {
	return ChatResponse{
		ID:           c.ID,
		Title:        c.Title,
		Provider:     c.Provider,
		Params:       c.Params,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
