package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/models"
)

func principalFromContext(c *gin.Context) (models.Principal, bool) {
	return middleware.PrincipalFrom(c)
}

func requestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}
