package handler

import (
	"errors"
	"net/http"

	"defendend-backend/internal/model"
	"defendend-backend/internal/security"
	"defendend-backend/internal/service"
	"defendend-backend/internal/storage"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth *service.AuthService
	// 登录成功后清掉该身份的失败计数
	loginLimiter *security.RateLimiter
}

func NewAuthHandler(auth *service.AuthService, loginLimiter *security.RateLimiter) *AuthHandler {
	return &AuthHandler{auth: auth, loginLimiter: loginLimiter}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, token, err := h.auth.Register(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, model.TokenResponse{Token: token, User: user})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, token, err := h.auth.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	h.loginLimiter.Reset(identity(c))
	c.JSON(http.StatusOK, model.TokenResponse{Token: token, User: user})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.JSON(http.StatusOK, user)
}
