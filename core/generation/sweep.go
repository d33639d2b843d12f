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

	"github.com/robfig/cron/v3"
)

const sweepBatch = 200

// StaleSongStore finds and retires songs that never left the queue.
type StaleSongStore interface {
	ListStaleQueued(ctx context.Context, before time.Time, limit int) ([]*model.Song, error)
	MarkFailed(ctx context.Context, id string) error
}

// SweepResult summarises one sweep pass.
type SweepResult struct {
	Redispatched int
	Failed       int
}

// Sweeper re-publishes triggers for songs stuck in queued and fails songs queued too long.
type Sweeper struct {
	songs      StaleSongStore
	dispatcher events.Dispatcher
	staleAfter time.Duration
	giveUp     time.Duration
	lists      ListInvalidator
	now        func() time.Time
}

// NewSweeper creates a sweeper. giveUp must exceed staleAfter; lists may be nil.
func NewSweeper(songs StaleSongStore, dispatcher events.Dispatcher, lists ListInvalidator, staleAfter, giveUp time.Duration) *Sweeper {
	return &Sweeper{
		songs:      songs,
		dispatcher: dispatcher,
		lists:      lists,
		staleAfter: staleAfter,
		giveUp:     giveUp,
		now:        time.Now,
	}
}

// Run performs one pass over at most one batch of stale songs.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	songs, err := s.songs.ListStaleQueued(ctx, now.Add(-s.staleAfter), sweepBatch)
	if err != nil {
		return res, fmt.Errorf("list stale songs: %w", err)
	}

	var errs []error
	touched := make(map[string]struct{})
	for _, song := range songs {
		if song.CreatedAt.Before(now.Add(-s.giveUp)) {
			if err := s.songs.MarkFailed(ctx, song.ID); err != nil {
				errs = append(errs, fmt.Errorf("fail song %s: %w", song.ID, err))
				continue
			}
			res.Failed++
			touched[song.UserID] = struct{}{}
			continue
		}
		trigger := events.GenerationJobTrigger{SongID: song.ID, UserID: song.UserID}
		if err := s.dispatcher.Publish(ctx, trigger); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Redispatched++
	}

	for userID := range touched {
		s.invalidate(ctx, userID)
	}

	metrics.RecordSweepRedispatch(res.Redispatched)
	if res.Redispatched > 0 || res.Failed > 0 {
		logger.Info("[Sweep] stale songs handled",
			logger.Int("redispatched", res.Redispatched),
			logger.Int("failed", res.Failed))
	}
	return res, errors.Join(errs...)
}

func (s *Sweeper) invalidate(ctx context.Context, userID string) {
	if s.lists == nil {
		return
	}
	if err := s.lists.InvalidateSongList(ctx, userID); err != nil {
		logger.Warn("[Sweep] failed to invalidate song list", logger.String("userId", userID), logger.ErrorField(err))
	}
}

// Schedule registers the sweep on c using a standard cron spec or descriptor like "@every 10m".
func (s *Sweeper) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Run(ctx); err != nil {
			logger.Error("[Sweep] pass failed", logger.ErrorField(err))
		}
	})
}
