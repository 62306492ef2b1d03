package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"insightlearn/internal/database"
	"insightlearn/internal/model"
)

// JobResponse is the API shape of a job record.
type JobResponse struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	LessonID    string          `json:"lessonId,omitempty"`
	Status      string          `json:"status"`
	RetryCount  int             `json:"retryCount"`
	ParentID    string          `json:"parentId,omitempty"`
	Params      model.JobParams `json:"params"`
	SubmittedAt string          `json:"submittedAt"`
	StartedAt   string          `json:"startedAt,omitempty"`
	CompletedAt string          `json:"completedAt,omitempty"`
	LastError   string          `json:"lastError,omitempty"`
}

func (s *Server) getJobHandler(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job id"})
		return
	}

	job, err := s.db.GetJobByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, convertJobToResponse(job))
}

func (s *Server) listJobChildrenHandler(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job id"})
		return
	}

	children, err := s.db.ListJobsByParent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list continuations: " + err.Error()})
		return
	}

	response := make([]JobResponse, 0, len(children))
	for _, job := range children {
		response = append(response, convertJobToResponse(job))
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) jobStatsHandler(c *gin.Context) {
	statuses := []model.JobStatus{
		model.StatusQueued,
		model.StatusRunning,
		model.StatusSucceeded,
		model.StatusFailed,
		model.StatusSkipped,
	}

	stats := gin.H{}
	for _, status := range statuses {
		count, err := s.db.CountJobsByStatus(c.Request.Context(), status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count jobs: " + err.Error()})
			return
		}
		stats[string(status)] = count
	}

	c.JSON(http.StatusOK, stats)
}

func convertJobToResponse(job *model.Job) JobResponse {
	resp := JobResponse{
		ID:          job.ID.Hex(),
		Kind:        string(job.Kind),
		LessonID:    job.LessonID,
		Status:      string(job.Status),
		RetryCount:  job.RetryCount,
		Params:      job.Params,
		SubmittedAt: job.SubmittedAt.Format(time.RFC3339),
		LastError:   job.LastError,
	}

	if job.ParentID != nil {
		resp.ParentID = job.ParentID.Hex()
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}

	return resp
}
