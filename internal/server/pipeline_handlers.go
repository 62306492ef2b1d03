package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"insightlearn/internal/cache"
	"insightlearn/internal/database"
	"insightlearn/internal/model"
)

// Completed records are immutable, so they can sit in the cache for a
// while; records still in flight get a short TTL so status changes
// show up quickly even if the worker-side invalidation is missed.
const (
	completedRecordCacheTTL = time.Hour
	pendingRecordCacheTTL   = 30 * time.Second
)

// scanKinds maps the route parameter to the scan job kind.
var scanKinds = map[string]model.JobKind{
	"transcription": model.KindTranscriptionScan,
	"subtitle":      model.KindSubtitleScan,
}

// triggerScanHandler submits a backlog scan on demand, outside the
// nightly schedule.
func (s *Server) triggerScanHandler(c *gin.Context) {
	kind, ok := scanKinds[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scan kind. Must be 'transcription' or 'subtitle'"})
		return
	}

	jobID, err := s.sched.Enqueue(c.Request.Context(), kind, "", model.JobParams{})
	if err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to submit manual scan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID.Hex(), "kind": string(kind)})
}

// triggerTranscriptionHandler submits a transcription job for one
// lesson. Racing the nightly scan is fine: whoever finishes first
// satisfies the other.
func (s *Server) triggerTranscriptionHandler(c *gin.Context) {
	lessonID := c.Param("id")

	jobID, err := s.sched.Enqueue(c.Request.Context(), model.KindTranscription, lessonID, model.JobParams{})
	if err != nil {
		if errors.Is(err, model.ErrArtifactExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Transcript already exists"})
			return
		}
		log.Error().Err(err).Str("lessonId", lessonID).Msg("Failed to submit transcription job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID.Hex()})
}

// TranslationRequest is the body of a manual translation trigger.
type TranslationRequest struct {
	TargetLanguage string `json:"targetLanguage" binding:"required"`
	Translator     string `json:"translator"`
}

func (s *Server) triggerTranslationHandler(c *gin.Context) {
	lessonID := c.Param("id")

	var req TranslationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	jobID, err := s.sched.Enqueue(c.Request.Context(), model.KindTranslation, lessonID, model.JobParams{
		TargetLanguage: req.TargetLanguage,
		Translator:     req.Translator,
	})
	if err != nil {
		log.Error().Err(err).Str("lessonId", lessonID).Msg("Failed to submit translation job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID.Hex(), "targetLanguage": req.TargetLanguage})
}

// getTranslationHandler serves a translation record, read-through
// cached so status polling does not hammer Mongo.
func (s *Server) getTranslationHandler(c *gin.Context) {
	ctx := c.Request.Context()
	lessonID := c.Param("id")
	lang := c.Param("lang")
	key := cache.TranslationRecordKey(lessonID, lang)

	if data, err := s.cache.Get(ctx, key); err == nil {
		var rec model.TranslationRecord
		if err := json.Unmarshal(data, &rec); err == nil {
			c.JSON(http.StatusOK, rec)
			return
		}
		log.Warn().Str("key", key).Msg("Dropping undecodable cached translation record")
		s.cache.Delete(ctx, key)
	}

	rec, err := s.db.GetTranslation(ctx, lessonID, lang)
	if err != nil {
		if errors.Is(err, database.ErrTranslationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No translation for this lesson and language"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if data, err := json.Marshal(rec); err == nil {
		ttl := pendingRecordCacheTTL
		if rec.Status == model.TranslationCompleted {
			ttl = completedRecordCacheTTL
		}
		if err := s.cache.Set(ctx, key, data, ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to cache translation record")
		}
	}

	c.JSON(http.StatusOK, rec)
}
