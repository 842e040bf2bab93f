package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/osmbc/articles/internal/users"
	"github.com/osmbc/articles/pkg/logger"
	"github.com/osmbc/articles/pkg/middleware"
)

// RegisterMe mounts GET /api/me. With verified claims the user record is
// created or refreshed from them; in header mode only the actor is known.
func RegisterMe(r gin.IRouter, userSvc *users.Service) {
	r.GET("/api/me", func(c *gin.Context) {
		claims := middleware.Claims(c)
		if claims == nil || userSvc == nil {
			c.JSON(http.StatusOK, gin.H{"osmUser": middleware.Actor(c)})
			return
		}
		u, err := userSvc.UpsertFromClaims(c.Request.Context(), claims)
		if err != nil {
			logger.Warnf("upsert user from claims: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store user"})
			return
		}
		if u == nil {
			c.JSON(http.StatusOK, gin.H{"osmUser": middleware.Actor(c)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": u})
	})
}
