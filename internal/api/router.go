package api

import (
	"github.com/gin-gonic/gin"

	"github.com/opengate/bridge/internal/common/logger"
)

// NewRouter builds the status API router.
func NewRouter(handler *Handler, log *logger.Logger, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	v1.GET("/status", handler.Status)

	return router
}
