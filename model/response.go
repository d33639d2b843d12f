package model

import "time"

// SongResponse is the listing shape returned to clients.
type SongResponse struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	CreatedAt         time.Time  `json:"createdAt"`
	Instrumental      bool       `json:"instrumental"`
	Prompt            *string    `json:"prompt"`
	Lyrics            *string    `json:"lyrics"`
	FullDescribedSong *string    `json:"fullDescribedSong"`
	DescribedLyrics   *string    `json:"describedLyrics"`
	GuidanceScale     float64    `json:"guidanceScale"`
	Status            SongStatus `json:"status"`
	Affordance        string     `json:"affordance"`
	ThumbnailURL      *string    `json:"thumbnailUrl"`
	Published         bool       `json:"published"`
	ListenCount       int64      `json:"listenCount"`
	CreatedByUserName string     `json:"createdByUserName,omitempty"`
}

// ToResponse 转换为响应格式; the caller fills Affordance and ThumbnailURL.
func (s *Song) ToResponse() SongResponse {
	return SongResponse{
		ID:                s.ID,
		Title:             s.Title,
		CreatedAt:         s.CreatedAt,
		Instrumental:      s.Instrumental,
		Prompt:            s.Prompt,
		Lyrics:            s.Lyrics,
		FullDescribedSong: s.FullDescribedSong,
		DescribedLyrics:   s.DescribedLyrics,
		GuidanceScale:     s.GuidanceScale,
		Status:            s.Status,
		Published:         s.Published,
		ListenCount:       s.ListenCount,
	}
}
