package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// Router builds the gin engine with middleware and every route.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	s.SetupRoutes(router)
	return router
}

// SetupRoutes configures all HTTP routes for the server
func (s *Server) SetupRoutes(router *gin.Engine) {
	router.Use(RecoveryMiddleware(s.log))
	router.Use(SecurityHeadersMiddleware(s.cfg.GinMode == gin.ReleaseMode))
	router.Use(CORSMiddleware(CORSConfigFor(s.cfg.CORSOrigin)))
	router.Use(LoggingMiddleware(s.log))
	router.Use(ErrorHandlingMiddleware())

	api := router.Group("/api")
	{
		api.Use(RequestValidationMiddleware())

		api.GET("/health", s.HealthHandler)

		api.GET("/providers", s.ProvidersHandler)
		api.GET("/providers/:providerId/models", s.ProviderModelsHandler)
		api.GET("/models", s.ModelsHandler)
		api.POST("/models/refresh", s.RefreshModelsHandler)

		api.POST("/races", s.limiter.Middleware(), s.StartRace)
		api.GET("/races", s.ListRaces)
		api.GET("/races/:raceId", s.GetRace)
		api.POST("/races/:raceId/cancel", s.CancelRace)
		api.GET("/races/:raceId/leaderboard", s.LeaderboardHandler)
		api.GET("/races/:raceId/stream", s.streams.StreamRace)
		api.GET("/races/:raceId/ws", s.streams.RaceSocket)

		api.GET("/races/:raceId/export/json", s.ExportJSONHandler)
		api.GET("/races/:raceId/export/csv", s.ExportCSVHandler)
	}

	staticPath := s.cfg.StaticPath

	router.GET("/", func(c *gin.Context) {
		indexPath := filepath.Join(staticPath, "index.html")
		if _, err := os.Stat(indexPath); os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{
				"message": "LLM Race API",
				"version": Version,
				"status":  "ok",
				"endpoints": gin.H{
					"health":    "/api/health",
					"providers": "/api/providers",
					"models":    "/api/models",
					"races":     "/api/races",
				},
			})
			return
		}
		c.Redirect(http.StatusMovedPermanently, "/ui/")
	})

	router.StaticFS("/ui", http.Dir(staticPath))

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Not Found",
				Message: "The requested endpoint does not exist",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "The requested resource does not exist",
		})
	})
}
