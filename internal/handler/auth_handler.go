package handler

import (
	"errors"
	"net/http"
	"strings"

	"chai-builder-go/internal/service"
	"chai-builder-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责处理注册、登录和凭证生命周期相关的 API 请求。
type AuthHandler struct {
	userService service.UserService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(userService service.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

// RegisterRequest 定义了用户注册 API 的请求体结构。
type RegisterRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=6"`
	ProfilePicture string `json:"profilePicture"`
}

// Register 处理用户注册请求。
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Name, email and password are required"})
		return
	}

	result, err := h.userService.Register(req.Name, req.Email, req.Password, req.ProfilePicture)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "User already exists"})
			return
		}
		log.Errorf("Register: registration failed for '%s': %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Registration failed", "error": errDetail(err)})
		return
	}

	log.Infof("用户注册成功: %s", result.User.Email)
	c.JSON(http.StatusCreated, gin.H{
		"success":       true,
		"user":          result.User,
		"token":         result.AccessToken,
		"refreshToken":  result.RefreshToken,
		"tokensGranted": result.TokensGranted,
	})
}

// LoginRequest 定义了用户登录 API 的请求体结构。
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login 处理用户登录请求。
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Email and password are required"})
		return
	}

	result, err := h.userService.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid credentials"})
			return
		}
		log.Errorf("Login: login failed for '%s': %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Login failed", "error": errDetail(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"user":          result.User,
		"token":         result.AccessToken,
		"refreshToken":  result.RefreshToken,
		"tokensGranted": result.TokensGranted,
	})
}

// GoogleAuthRequest 定义了 Google 联邦登录 API 的请求体结构。
type GoogleAuthRequest struct {
	GoogleID       string `json:"googleId" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Name           string `json:"name" binding:"required"`
	ProfilePicture string `json:"profilePicture"`
}

// GoogleAuth 处理 Google 联邦登录请求。
func (h *AuthHandler) GoogleAuth(c *gin.Context) {
	var req GoogleAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("GoogleAuth: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "googleId, email and name are required"})
		return
	}

	result, err := h.userService.GoogleAuth(req.GoogleID, req.Email, req.Name, req.ProfilePicture)
	if err != nil {
		log.Errorf("GoogleAuth: login failed for '%s': %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Google authentication failed", "error": errDetail(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"user":          result.User,
		"token":         result.AccessToken,
		"refreshToken":  result.RefreshToken,
		"tokensGranted": result.TokensGranted,
	})
}

// RefreshTokenRequest 定义了刷新凭证 API 的请求体结构。
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshToken 用 refresh token 换取新的一对凭证。
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "refreshToken is required"})
		return
	}

	accessToken, refreshToken, err := h.userService.RefreshToken(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid refresh token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"token":        accessToken,
		"refreshToken": refreshToken,
	})
}

// Logout 将当前 access token 拉黑。
func (h *AuthHandler) Logout(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Authorization token is required"})
		return
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	if err := h.userService.Logout(c.Request.Context(), tokenString); err != nil {
		log.Errorf("Logout: failed to revoke token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Logout failed", "error": errDetail(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}
