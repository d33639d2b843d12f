// Package generation turns a user's song request into queued songs and render jobs.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"songforge/events"
	"songforge/logger"
	"songforge/metrics"
	"songforge/model"

	"github.com/google/uuid"
)

// GuidanceScales are rendered for every submission, in this order.
var GuidanceScales = []float64{7.5, 15}

// ErrPartialSubmission means at least one variant had been queued before a later one failed.
// The queued variants were compensated before the error was returned.
var ErrPartialSubmission = errors.New("partial submission")

const compensationTimeout = 10 * time.Second

// SongStore is the persistence the intake saga needs.
type SongStore interface {
	Create(ctx context.Context, song *model.Song) error
	MarkFailed(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// ListInvalidator marks a user's cached song listing stale.
type ListInvalidator interface {
	InvalidateSongList(ctx context.Context, userID string) error
}

// Intake validates nothing beyond shape: an empty request is queued as "Untitled".
type Intake struct {
	songs      SongStore
	dispatcher events.Dispatcher
	lists      ListInvalidator
	newID      func() string
}

// NewIntake wires the intake saga. lists may be nil when no listing cache is configured.
func NewIntake(songs SongStore, dispatcher events.Dispatcher, lists ListInvalidator) *Intake {
	return &Intake{
		songs:      songs,
		dispatcher: dispatcher,
		lists:      lists,
		newID:      uuid.NewString,
	}
}

// placedVariant is one completed or half-completed step of the saga.
type placedVariant struct {
	song      *model.Song
	triggered bool
}

// Submit creates one queued song per guidance scale and publishes a trigger for each.
// A song is only triggered after it is persisted. If any step fails, earlier steps are
// compensated: untriggered songs are deleted, triggered songs are marked failed.
func (in *Intake) Submit(ctx context.Context, req Request, userID string) ([]*model.Song, error) {
	title := DeriveTitle(req.Variant())

	var placed []placedVariant
	for _, guidance := range GuidanceScales {
		song := newSong(in.newID(), userID, title, req, guidance)

		if err := in.songs.Create(ctx, song); err != nil {
			return nil, in.abort(ctx, userID, placed, fmt.Errorf("create song (guidance %v): %w", guidance, err))
		}

		trigger := events.GenerationJobTrigger{SongID: song.ID, UserID: song.UserID}
		if err := in.dispatcher.Publish(ctx, trigger); err != nil {
			placed = append(placed, placedVariant{song: song})
			return nil, in.abort(ctx, userID, placed, fmt.Errorf("publish trigger for song %s: %w", song.ID, err))
		}

		placed = append(placed, placedVariant{song: song, triggered: true})
		metrics.RecordSongSubmitted(guidance)
		logger.Info("[Intake] song queued",
			logger.String("songId", song.ID),
			logger.String("userId", userID),
			logger.Float64("guidanceScale", guidance))
	}

	in.invalidate(ctx, userID)
	metrics.RecordSubmission("ok")

	songs := make([]*model.Song, 0, len(placed))
	for _, p := range placed {
		songs = append(songs, p.song)
	}
	return songs, nil
}

func newSong(id, userID, title string, req Request, guidance float64) *model.Song {
	return &model.Song{
		ID:                id,
		UserID:            userID,
		Title:             title,
		Prompt:            model.StringPtr(req.Prompt),
		Lyrics:            model.StringPtr(req.Lyrics),
		FullDescribedSong: model.StringPtr(req.FullDescribedSong),
		DescribedLyrics:   model.StringPtr(req.DescribedLyrics),
		Instrumental:      req.Instrumental,
		GuidanceScale:     guidance,
		AudioDuration:     model.DefaultAudioDuration,
		Status:            model.SongStatusQueued,
	}
}

// abort compensates placed variants newest first and returns cause, marked partial when
// an earlier variant had already reached the worker queue.
func (in *Intake) abort(ctx context.Context, userID string, placed []placedVariant, cause error) error {
	if len(placed) == 0 {
		metrics.RecordSubmission("failed")
		logger.Error("[Intake] submission failed", logger.String("userId", userID), logger.ErrorField(cause))
		return cause
	}

	// compensation must run even if the request context is already gone
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	partial := false
	var compErrs []error
	for i := len(placed) - 1; i >= 0; i-- {
		p := placed[i]
		if p.triggered {
			partial = true
			if err := in.songs.MarkFailed(cctx, p.song.ID); err != nil {
				compErrs = append(compErrs, fmt.Errorf("mark song %s failed: %w", p.song.ID, err))
			}
			continue
		}
		if err := in.songs.Delete(cctx, p.song.ID); err != nil {
			compErrs = append(compErrs, fmt.Errorf("delete song %s: %w", p.song.ID, err))
		}
	}
	in.invalidate(cctx, userID)

	err := cause
	if partial {
		err = fmt.Errorf("%w: %w", ErrPartialSubmission, cause)
		metrics.RecordSubmission("partial")
	} else {
		metrics.RecordSubmission("failed")
	}
	if len(compErrs) > 0 {
		logger.Error("[Intake] compensation incomplete", logger.String("userId", userID), logger.ErrorField(errors.Join(compErrs...)))
		err = errors.Join(append([]error{err}, compErrs...)...)
	}
	logger.Error("[Intake] submission aborted",
		logger.String("userId", userID),
		logger.Bool("partial", partial),
		logger.ErrorField(cause))
	return err
}

func (in *Intake) invalidate(ctx context.Context, userID string) {
	if in.lists == nil {
		return
	}
	if err := in.lists.InvalidateSongList(ctx, userID); err != nil {
		logger.Warn("[Intake] failed to invalidate song list", logger.String("userId", userID), logger.ErrorField(err))
	}
}
