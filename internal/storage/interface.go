package storage

import "defendend-backend/internal/model"

type Storage interface {
	Init() error
	Close() error

	CreateUser(user *model.User) error
	GetUser(id string) (*model.User, error)
	GetUserByEmail(email string) (*model.User, error)
	ListUsers() ([]*model.User, error)
	UpdateUser(user *model.User) error

	CreateChat(chat *model.Chat) error
	GetChat(id string) (*model.Chat, error)
	ListChats(userID string) ([]*model.Chat, error)
	DeleteChat(id string) error
	UpdateChatConfig(chatID string, cfg model.ChatConfig) error
	// TouchChat 仅刷新会话的更新时间
	TouchChat(chatID string) error

	// LoadMessages 按创建时间顺序返回，永不重排
	LoadMessages(chatID string) ([]*model.Message, error)
	AppendMessage(chatID, role, content string) (*model.Message, error)
}
