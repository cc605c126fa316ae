package storage

import (
	"sync"
	"time"

	"defendend-backend/internal/model"

	"github.com/google/uuid"
)

// MemoryStorage 进程内存储，开发和测试用
type MemoryStorage struct {
	mu       sync.RWMutex
	users    map[string]*model.User
	byEmail  map[string]string
	chats    map[string]*model.Chat
	messages map[string][]*model.Message
	// 保证同一毫秒内追加的消息仍按插入顺序排序
	seq int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[string]*model.User),
		byEmail:  make(map[string]string),
		chats:    make(map[string]*model.Chat),
		messages: make(map[string][]*model.Message),
	}
}

func (m *MemoryStorage) Init() error  { return nil }
func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) CreateUser(user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEmail[user.Email]; exists {
		return ErrEmailTaken
	}
	m.users[user.ID] = user
	m.byEmail[user.Email] = user.ID
	return nil
}

func (m *MemoryStorage) GetUser(id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *MemoryStorage) GetUserByEmail(email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.byEmail[email]
	if !exists {
		return nil, ErrUserNotFound
	}
	copied := *m.users[id]
	return &copied, nil
}

func (m *MemoryStorage) ListUsers() ([]*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*model.User, 0, len(m.users))
	for _, user := range m.users {
		copied := *user
		users = append(users, &copied)
	}
	return users, nil
}

func (m *MemoryStorage) UpdateUser(user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; !exists {
		return ErrUserNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *MemoryStorage) CreateChat(chat *model.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chats[chat.ID] = chat
	m.messages[chat.ID] = make([]*model.Message, 0)
	return nil
}

func (m *MemoryStorage) GetChat(id string) (*model.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, exists := m.chats[id]
	if !exists {
		return nil, ErrChatNotFound
	}
	copied := *chat
	copied.Messages = make([]model.Message, 0, len(m.messages[id]))
	for _, msg := range m.messages[id] {
		copied.Messages = append(copied.Messages, *msg)
	}
	return &copied, nil
}

func (m *MemoryStorage) ListChats(userID string) ([]*model.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chats := make([]*model.Chat, 0)
	for _, chat := range m.chats {
		if chat.UserID != userID {
			continue
		}
		copied := *chat
		copied.Messages = make([]model.Message, 0, len(m.messages[chat.ID]))
		for _, msg := range m.messages[chat.ID] {
			copied.Messages = append(copied.Messages, *msg)
		}
		chats = append(chats, &copied)
	}
	return chats, nil
}

func (m *MemoryStorage) DeleteChat(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.chats[id]; !exists {
		return ErrChatNotFound
	}
	delete(m.chats, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryStorage) UpdateChatConfig(chatID string, cfg model.ChatConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, exists := m.chats[chatID]
	if !exists {
		return ErrChatNotFound
	}
	chat.Provider = cfg.Provider
	chat.Params = cfg.Params
	chat.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStorage) TouchChat(chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, exists := m.chats[chatID]
	if !exists {
		return ErrChatNotFound
	}
	chat.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStorage) LoadMessages(chatID string) ([]*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, exists := m.messages[chatID]
	if !exists {
		return nil, ErrChatNotFound
	}
	messages := make([]*model.Message, len(stored))
	for i, msg := range stored {
		copied := *msg
		messages[i] = &copied
	}
	return messages, nil
}

func (m *MemoryStorage) AppendMessage(chatID, role, content string) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.chats[chatID]; !exists {
		return nil, ErrChatNotFound
	}

	m.seq++
	message := &model.Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Add(time.Duration(m.seq)), // 纳秒级递增，保持创建顺序
	}
	m.messages[chatID] = append(m.messages[chatID], message)

	copied := *message
	return &copied, nil
}

var _ Storage = (*MemoryStorage)(nil)
