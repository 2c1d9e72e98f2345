package handlers

import (
	"github.com/gin-gonic/gin"
)

// NewRouter wires the HTTP routes. Admin routes are registered only when
// adminTokenHash is set.
func NewRouter(chat *ChatHandler, adminTokenHash string) *gin.Engine {
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	api := r.Group("/api")
	{
		api.POST("/chat", chat.Chat)
		api.POST("/chat/extract", chat.Extract)
	}

	if adminTokenHash != "" {
		admin := api.Group("/admin", RequireAdminToken([]byte(adminTokenHash)))
		admin.GET("/index-stats", chat.IndexStats)
	}

	return r
}
