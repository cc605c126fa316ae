package service

import "errors"

var (
	// ErrProviderForbidden 用户没有被授予该模型提供方的使用权限
	ErrProviderForbidden = errors.New("provider not allowed for this user")

	ErrInvalidCredentials = errors.New("invalid email or password")
)
