// Package playback issues signed, time-limited links to rendered songs.
package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"songforge/logger"
	"songforge/metrics"
	"songforge/model"
	"songforge/storage"
)

// DefaultLinkTTL is how long an issued link stays valid.
const DefaultLinkTTL = time.Hour

// ErrNotFoundOrForbidden covers a missing song, a private song of another user and a
// song without audio. Callers cannot tell these apart.
var ErrNotFoundOrForbidden = errors.New("song not found")

// SongFinder is the persistence the issuer needs.
type SongFinder interface {
	FindPlayable(ctx context.Context, id, userID string) (*model.Song, error)
	IncrementListenCount(ctx context.Context, id string) error
}

// Issuer hands out play and thumbnail links.
type Issuer struct {
	songs  SongFinder
	signer storage.URLSigner
	ttl    time.Duration
}

// NewIssuer creates an issuer; ttl <= 0 uses DefaultLinkTTL.
func NewIssuer(songs SongFinder, signer storage.URLSigner, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &Issuer{songs: songs, signer: signer, ttl: ttl}
}

// PlayURL returns a signed audio link and counts one listen for every link issued.
func (i *Issuer) PlayURL(ctx context.Context, songID, userID string) (string, error) {
	song, err := i.songs.FindPlayable(ctx, songID, userID)
	if err != nil {
		return "", fmt.Errorf("find song %s: %w", songID, err)
	}
	if song == nil || !song.HasResult() || !song.VisibleTo(userID) {
		return "", ErrNotFoundOrForbidden
	}

	if err := i.songs.IncrementListenCount(ctx, song.ID); err != nil {
		return "", fmt.Errorf("count listen for song %s: %w", song.ID, err)
	}

	url, err := i.signer.PresignGet(ctx, *song.AudioKey, i.ttl)
	if err != nil {
		return "", err
	}

	metrics.RecordPlayLink()
	logger.Debug("[Playback] link issued", logger.String("songId", song.ID), logger.String("userId", userID))
	return url, nil
}

// ThumbnailURL signs a thumbnail key. It has no side effects.
func (i *Issuer) ThumbnailURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrNotFoundOrForbidden
	}
	return i.signer.PresignGet(ctx, key, i.ttl)
}
