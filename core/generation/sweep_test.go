package generation

import (
	"context"
	"testing"
	"time"

	"songforge/events"
	"songforge/model"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperRun(t *testing.T) {
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	store := &fakeSongStore{stale: []*model.Song{
		{ID: "fresh", UserID: "u", Status: model.SongStatusQueued, CreatedAt: now.Add(-5 * time.Minute)},
		{ID: "stale", UserID: "u", Status: model.SongStatusQueued, CreatedAt: now.Add(-time.Hour)},
		{ID: "ancient", UserID: "u", Status: model.SongStatusQueued, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "done", UserID: "u", Status: model.SongStatusReady, CreatedAt: now.Add(-time.Hour)},
	}}
	disp := &fakeDispatcher{}
	lists := &fakeLists{}
	s := NewSweeper(store, disp, lists, 30*time.Minute, 24*time.Hour)
	s.now = func() time.Time { return now }

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Redispatched: 1, Failed: 1}, res)
	assert.Equal(t, []events.GenerationJobTrigger{{SongID: "stale", UserID: "u"}}, disp.published)
	assert.Equal(t, []string{"ancient"}, store.failed)
	assert.Equal(t, []string{"u"}, lists.invalidated)
}

func TestSweeperRunLeavesListingAloneWhenNothingFailed(t *testing.T) {
	now := time.Now()
	store := &fakeSongStore{stale: []*model.Song{
		{ID: "stale", UserID: "u", Status: model.SongStatusQueued, CreatedAt: now.Add(-time.Hour)},
	}}
	lists := &fakeLists{}
	s := NewSweeper(store, &fakeDispatcher{}, lists, 30*time.Minute, 24*time.Hour)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Redispatched)
	assert.Empty(t, lists.invalidated)
}

func TestSweeperRunCollectsPublishErrors(t *testing.T) {
	now := time.Now()
	store := &fakeSongStore{stale: []*model.Song{
		{ID: "a", UserID: "u", Status: model.SongStatusQueued, CreatedAt: now.Add(-time.Hour)},
		{ID: "b", UserID: "u", Status: model.SongStatusQueued, CreatedAt: now.Add(-time.Hour)},
	}}
	disp := &fakeDispatcher{failOn: map[int]error{0: errBoom}}
	s := NewSweeper(store, disp, nil, 30*time.Minute, 24*time.Hour)

	res, err := s.Run(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, res.Redispatched)
}

func TestSweeperSchedule(t *testing.T) {
	s := NewSweeper(&fakeSongStore{}, &fakeDispatcher{}, nil, time.Minute, time.Hour)
	c := cron.New()

	_, err := s.Schedule(c, "@every 10m")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = s.Schedule(c, "not a schedule")
	assert.Error(t, err)
}
