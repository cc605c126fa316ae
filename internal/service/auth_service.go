package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"defendend-backend/internal/config"
	"defendend-backend/internal/model"
	"defendend-backend/internal/security"
	"defendend-backend/internal/storage"

	"github.com/google/uuid"
)

// AuthService 注册、登录和令牌签发
type AuthService struct {
	storage storage.Storage
	tokens  *security.TokenManager
	cfg     config.SecurityConfig
}

func NewAuthService(store storage.Storage, tokens *security.TokenManager, cfg config.SecurityConfig) *AuthService {
	return &AuthService{
		storage: store,
		tokens:  tokens,
		cfg:     cfg,
	}
}

func (s *AuthService) Register(email, password string) (*model.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 8 {
		return nil, "", errors.New("email required and password must be at least 8 characters")
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	role := "user"
	// 管理员白名单里的邮箱注册即为管理员
	for _, admin := range s.cfg.AdminEmails {
		if strings.EqualFold(admin, email) {
			role = "admin"
			break
		}
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Providers:    append([]string(nil), s.cfg.DefaultProviders...),
		DailyQuota:   s.cfg.DefaultQuota,
		CreatedAt:    time.Now(),
	}

	if err := s.storage.CreateUser(user); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}
	return user, token, nil
}

func (s *AuthService) Login(email, password string) (*model.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.storage.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if !security.CheckPassword(user.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}
	return user, token, nil
}
