package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Lesson is the catalog view of a video lesson that the pipeline cares
// about: the source media and the derived artifact references. The
// rest of the course model lives with the platform API.
type Lesson struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CourseID      string             `bson:"course_id,omitempty" json:"course_id,omitempty"`
	Title         string             `bson:"title,omitempty" json:"title,omitempty"`
	MediaRef      string             `bson:"media_ref,omitempty" json:"media_ref,omitempty"`
	Language      string             `bson:"language,omitempty" json:"language,omitempty"`
	TranscriptRef string             `bson:"transcript_ref,omitempty" json:"transcript_ref,omitempty"`
	SubtitleRef   string             `bson:"subtitle_ref,omitempty" json:"subtitle_ref,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// HasMedia reports whether the lesson has source video to process.
func (l *Lesson) HasMedia() bool {
	return l.MediaRef != ""
}
