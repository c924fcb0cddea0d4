package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atelier-api/internal/middleware"
	"github.com/noah-isme/atelier-api/internal/models"
)

// claimsFromContext returns the authenticated user's claims, nil when the
// request passed through without the JWT middleware.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	if claims, ok := value.(*models.JWTClaims); ok {
		return claims
	}
	return nil
}
