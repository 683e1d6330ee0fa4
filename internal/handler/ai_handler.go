package handler

import (
	"errors"
	"net/http"

	"chai-builder-go/internal/service"
	"chai-builder-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AIHandler 负责处理 AI 对话入口的 API 请求。
type AIHandler struct {
	aiService service.AIService
}

// NewAIHandler 创建一个新的 AIHandler 实例。
func NewAIHandler(aiService service.AIService) *AIHandler {
	return &AIHandler{aiService: aiService}
}

// ChatRequest 定义了 AI 对话 API 的请求体结构。
type ChatRequest struct {
	Messages       []service.ChatTurn `json:"messages"`
	ConversationID string             `json:"conversationId"`
}

// Chat 是 AI 对话的统一入口。
func (h *AIHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Messages array is required and cannot be empty"})
		return
	}
	if req.ConversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "conversationId is required"})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
		return
	}

	result, err := h.aiService.Chat(c.Request.Context(), user, req.ConversationID, req.Messages)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenOver):
			c.JSON(http.StatusForbidden, gin.H{"error": "token_over"})
		case errors.Is(err, service.ErrNoUserMessage):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "No user message found"})
		case errors.Is(err, service.ErrBadAIResponse):
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "AI response format error"})
		default:
			log.Errorf("AI Chat: conversationId=%s, error: %v", req.ConversationID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error generating AI response", "error": errDetail(err)})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}
