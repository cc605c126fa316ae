package service

import (
	"defendend-backend/internal/model"
	"defendend-backend/internal/storage"
)

// AdminService 用户列表与提供方授权管理
type AdminService struct {
	storage storage.Storage
}

func NewAdminService(store storage.Storage) *AdminService {
	return &AdminService{storage: store}
}

func (s *AdminService) ListUsers() ([]*model.User, error) {
	return s.storage.ListUsers()
}

// UpdateAccess 覆盖式更新用户可用的提供方集合和每日配额
func (s *AdminService) UpdateAccess(userID string, providers []string, dailyQuota int) (*model.User, error) {
	user, err := s.storage.GetUser(userID)
	if err != nil {
		return nil, err
	}

	user.Providers = append([]string(nil), providers...)
	if dailyQuota > 0 {
		user.DailyQuota = dailyQuota
	}

	if err := s.storage.UpdateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}
