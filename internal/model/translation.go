package model

import (
	"time"
)

// TranslationStatus represents the overall state of one translation
// task, as opposed to the per-retry job lifecycle.
type TranslationStatus string

const (
	TranslationPending    TranslationStatus = "pending"
	TranslationProcessing TranslationStatus = "processing"
	TranslationCompleted  TranslationStatus = "completed"
	TranslationFailed     TranslationStatus = "failed"
)

// TranslationRecord tracks one (lesson, target language) translation
// task. At most one record exists per pair; a record that reached
// completed makes further requests for the pair a no-op.
type TranslationRecord struct {
	LessonID       string            `bson:"lesson_id" json:"lesson_id"`
	TargetLanguage string            `bson:"target_language" json:"target_language"`
	Status         TranslationStatus `bson:"status" json:"status"`
	ArtifactRef    string            `bson:"artifact_ref,omitempty" json:"artifact_ref,omitempty"`
	SegmentCount   int               `bson:"segment_count" json:"segment_count"`
	CharCount      int               `bson:"char_count" json:"char_count"`
	EstimatedCost  float64           `bson:"estimated_cost" json:"estimated_cost"`
	Error          string            `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt      time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at" json:"updated_at"`
	CompletedAt    *time.Time        `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Segment is one timed line of transcript or subtitle text. Indices
// are 0-based and dense; a translated list always has the same length
// as its source list.
type Segment struct {
	Index       int      `bson:"index" json:"index"`
	StartSec    float64  `bson:"start_sec" json:"start_sec"`
	EndSec      float64  `bson:"end_sec" json:"end_sec"`
	Text        string   `bson:"text" json:"text"`
	Translation string   `bson:"translation,omitempty" json:"translation,omitempty"`
	Confidence  *float64 `bson:"confidence,omitempty" json:"confidence,omitempty"`
}
