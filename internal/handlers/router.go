package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/pneumo-api/internal/artifact"
)

type RouterOptions struct {
	CORSOrigin string
	// HeatmapDir is served under /static/heatmaps when set.
	HeatmapDir string
}

func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	eng := gin.New()
	eng.Use(gin.Recovery(), requestLogger(h.logger), enableCORS(opts.CORSOrigin))

	eng.GET("/", h.Root)
	eng.GET("/health", h.Health)

	if opts.HeatmapDir != "" {
		eng.Static(strings.TrimSuffix(artifact.StaticPrefix, "/"), opts.HeatmapDir)
	}

	authGroup := eng.Group("/auth")
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.GET("/me", h.requireAuth, h.Me)
	authGroup.PUT("/update-profile", h.requireAuth, h.UpdateProfile)
	authGroup.PUT("/change-password", h.requireAuth, h.ChangePassword)

	predictions := eng.Group("/predictions", h.requireAuth)
	predictions.POST("/predict", h.Predict)

	history := eng.Group("/history", h.requireAuth)
	history.GET("", h.History)
	history.POST("", h.AddHistory)

	return eng
}
