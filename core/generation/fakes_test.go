package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"songforge/events"
	"songforge/model"
)

var errBoom = errors.New("boom")

type fakeSongStore struct {
	created   []*model.Song
	failed    []string
	deleted   []string
	createErr map[int]error // keyed by call index
	failErr   error
	deleteErr error

	stale []*model.Song
}

func (f *fakeSongStore) Create(ctx context.Context, song *model.Song) error {
	idx := len(f.created)
	if err := f.createErr[idx]; err != nil {
		f.createErr[idx] = nil
		return err
	}
	f.created = append(f.created, song)
	return nil
}

func (f *fakeSongStore) MarkFailed(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failErr != nil {
		return f.failErr
	}
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeSongStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSongStore) ListStaleQueued(ctx context.Context, before time.Time, limit int) ([]*model.Song, error) {
	var out []*model.Song
	for _, s := range f.stale {
		if s.Status == model.SongStatusQueued && s.CreatedAt.Before(before) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeDispatcher struct {
	published []events.GenerationJobTrigger
	failOn    map[int]error // keyed by call index
	calls     int
}

func (f *fakeDispatcher) Publish(ctx context.Context, trigger events.GenerationJobTrigger) error {
	idx := f.calls
	f.calls++
	if err := f.failOn[idx]; err != nil {
		return err
	}
	f.published = append(f.published, trigger)
	return nil
}

type fakeLists struct {
	invalidated []string
}

func (f *fakeLists) InvalidateSongList(ctx context.Context, userID string) error {
	f.invalidated = append(f.invalidated, userID)
	return nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("song-%d", n)
	}
}
