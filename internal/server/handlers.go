package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) healthHandler(c *gin.Context) {
	ctx := c.Request.Context()

	checks := gin.H{
		"mongodb":  "ok",
		"redis":    "ok",
		"rabbitmq": "ok",
	}
	healthy := true

	if err := s.db.Health(ctx); err != nil {
		checks["mongodb"] = err.Error()
		healthy = false
	}
	if err := s.cache.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}
	if err := s.queue.Health(); err != nil {
		checks["rabbitmq"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
}
