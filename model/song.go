package model

import (
	"time"
)

// SongStatus is the generation lifecycle state of a Song.
type SongStatus string

const (
	SongStatusQueued     SongStatus = "queued"
	SongStatusProcessing SongStatus = "processing"
	SongStatusReady      SongStatus = "ready"
	SongStatusFailed     SongStatus = "failed"
	SongStatusNoCredits  SongStatus = "no-credits"

	// SongStatusNoCreditsLegacy is the spelling older worker builds write.
	SongStatusNoCreditsLegacy SongStatus = "no credits"
)

// DefaultAudioDuration is the render length in seconds requested for every new song.
const DefaultAudioDuration = 180

// Song is one generation request and, once the worker finishes, its result.
// AudioKey and ThumbnailKey are set by the worker together with Status=ready.
type Song struct {
	ID     string `json:"id" gorm:"primaryKey;size:36"`
	UserID string `json:"userId" gorm:"size:36;index;not null"`

	Title             string  `json:"title" gorm:"size:255;not null"`
	Prompt            *string `json:"prompt,omitempty" gorm:"type:text"`
	Lyrics            *string `json:"lyrics,omitempty" gorm:"type:text"`
	FullDescribedSong *string `json:"fullDescribedSong,omitempty" gorm:"type:text"`
	DescribedLyrics   *string `json:"describedLyrics,omitempty" gorm:"type:text"`
	Instrumental      bool    `json:"instrumental" gorm:"default:false"`
	GuidanceScale     float64 `json:"guidanceScale" gorm:"not null"`
	AudioDuration     float64 `json:"audioDuration" gorm:"not null"`

	Status       SongStatus `json:"status" gorm:"size:20;default:'queued';index"`
	AudioKey     *string    `json:"-" gorm:"size:512"`
	ThumbnailKey *string    `json:"-" gorm:"size:512"`

	Published   bool  `json:"published" gorm:"default:false;index"`
	ListenCount int64 `json:"listenCount" gorm:"default:0"`

	CreatedAt time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Song) TableName() string {
	return "songs"
}

// HasResult reports whether the worker has written back an audio key.
func (s *Song) HasResult() bool {
	return s.AudioKey != nil && *s.AudioKey != ""
}

// VisibleTo reports whether userID may read the song.
func (s *Song) VisibleTo(userID string) bool {
	return s.UserID == userID || s.Published
}

// StringPtr returns nil for an empty string so optional request fields are stored as NULL.
func StringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Deref returns the pointed-to string or "".
func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
