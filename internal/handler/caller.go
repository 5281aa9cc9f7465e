package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/models"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/response"
)

// requireCaller returns the authenticated caller. When the JWT middleware left no claims it
// answers 401 and reports false; the handler must return immediately.
func requireCaller(c *gin.Context) (*models.JWTClaims, bool) {
	if value, exists := c.Get(middleware.ContextUserKey); exists {
		if claims, ok := value.(*models.JWTClaims); ok && claims != nil {
			return claims, true
		}
	}
	response.Error(c, appErrors.ErrUnauthorized)
	return nil, false
}
