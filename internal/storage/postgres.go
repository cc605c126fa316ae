package storage

import (
	"errors"
	"fmt"
	"time"

	"defendend-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresStorage gorm 持久化实现
type PostgresStorage struct {
	dsn string
	db  *gorm.DB
}

func NewPostgresStorage(dsn string) *PostgresStorage {
	return &PostgresStorage{dsn: dsn}
}

func (p *PostgresStorage) Init() error {
	db, err := gorm.Open(postgres.Open(p.dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Chat{}, &model.Message{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	p.db = db
	return nil
}

func (p *PostgresStorage) Close() error {
	if p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *PostgresStorage) CreateUser(user *model.User) error {
	var count int64
	if err := p.db.Model(&model.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrEmailTaken
	}
	return p.db.Create(user).Error
}

func (p *PostgresStorage) GetUser(id string) (*model.User, error) {
	var user model.User
	if err := p.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (p *PostgresStorage) GetUserByEmail(email string) (*model.User, error) {
	var user model.User
	if err := p.db.First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (p *PostgresStorage) ListUsers() ([]*model.User, error) {
	var users []*model.User
	if err := p.db.Order("created_at").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (p *PostgresStorage) UpdateUser(user *model.User) error {
	result := p.db.Model(&model.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"providers":   user.Providers,
		"daily_quota": user.DailyQuota,
		"role":        user.Role,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (p *PostgresStorage) CreateChat(chat *model.Chat) error {
	return p.db.Create(chat).Error
}

func (p *PostgresStorage) GetChat(id string) (*model.Chat, error) {
	var chat model.Chat
	if err := p.db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp")
	}).First(&chat, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return &chat, nil
}

func (p *PostgresStorage) ListChats(userID string) ([]*model.Chat, error) {
	var chats []*model.Chat
	if err := p.db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp")
	}).Where("user_id = ?", userID).Order("updated_at desc").Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

func (p *PostgresStorage) DeleteChat(id string) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&model.Chat{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrChatNotFound
		}
		return tx.Delete(&model.Message{}, "chat_id = ?", id).Error
	})
}

func (p *PostgresStorage) UpdateChatConfig(chatID string, cfg model.ChatConfig) error {
	result := p.db.Model(&model.Chat{}).Where("id = ?", chatID).Updates(map[string]interface{}{
		"provider":   cfg.Provider,
		"params":     cfg.Params,
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (p *PostgresStorage) TouchChat(chatID string) error {
	result := p.db.Model(&model.Chat{}).Where("id = ?", chatID).Update("updated_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (p *PostgresStorage) LoadMessages(chatID string) ([]*model.Message, error) {
	var count int64
	if err := p.db.Model(&model.Chat{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrChatNotFound
	}

	var messages []*model.Message
	if err := p.db.Where("chat_id = ?", chatID).Order("timestamp").Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (p *PostgresStorage) AppendMessage(chatID, role, content string) (*model.Message, error) {
	message := &model.Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}

	err := p.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Chat{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrChatNotFound
		}
		return tx.Create(message).Error
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

var _ Storage = (*PostgresStorage)(nil)
