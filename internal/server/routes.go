package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
	}))

	r.GET("/health", s.healthHandler)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/jobs/:id", s.getJobHandler)
		v1.GET("/jobs/:id/children", s.listJobChildrenHandler)
		v1.GET("/jobs/stats", s.jobStatsHandler)

		v1.POST("/scans/:kind", s.triggerScanHandler)
		v1.POST("/lessons/:id/transcription", s.triggerTranscriptionHandler)
		v1.POST("/lessons/:id/translations", s.triggerTranslationHandler)
		v1.GET("/lessons/:id/translations/:lang", s.getTranslationHandler)
	}

	return r
}
