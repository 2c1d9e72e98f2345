package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"harfy-backend/models"
	"harfy-backend/service"
)

// ChatResponder is the chat pipeline as used by the HTTP layer.
type ChatResponder interface {
	Chat(ctx context.Context, messages []models.ChatMessage) (*models.ChatReply, error)
	ExtractReply(text string) service.ExtractResult
	IndexStats(ctx context.Context) (models.IndexStats, error)
}

// ChatHandler handles HTTP requests for the chat assistant
type ChatHandler struct {
	chat ChatResponder
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat ChatResponder) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// ChatRequest represents the request body for a chat turn
type ChatRequest struct {
	Messages []models.ChatMessage `json:"messages"`
}

// ExtractRequest represents the request body for reply extraction
type ExtractRequest struct {
	Content string `json:"content"`
}

// Chat handles POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message format"})
		return
	}

	reply, err := h.chat.Chat(c.Request.Context(), req.Messages)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message format"})
			return
		}
		log.Printf("Error: chat turn failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"details": err.Error(),
		})
		return
	}

	resp := gin.H{
		"id":        reply.ID,
		"role":      reply.Role,
		"content":   reply.Content,
		"createdAt": reply.CreatedAt.Format(time.RFC3339Nano),
	}
	if includes(c.Query("include"), "craftsmen") {
		craftsmen := reply.Craftsmen
		if craftsmen == nil {
			craftsmen = make([]models.CraftsmanRecord, 0)
		}
		resp["craftsmen"] = craftsmen
	}
	c.JSON(http.StatusOK, resp)
}

// Extract handles POST /api/chat/extract
func (h *ChatHandler) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	c.JSON(http.StatusOK, h.chat.ExtractReply(req.Content))
}

// IndexStats handles GET /api/admin/index-stats
func (h *ChatHandler) IndexStats(c *gin.Context) {
	stats, err := h.chat.IndexStats(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrStoreNotSet) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Vector store not configured"})
			return
		}
		log.Printf("Error: failed to read index stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// includes reports whether a comma separated include list names want.
func includes(list, want string) bool {
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == want {
			return true
		}
	}
	return false
}
