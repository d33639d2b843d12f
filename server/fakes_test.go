package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"songforge/core/auth"
	"songforge/core/billing"
	"songforge/core/generation"
	"songforge/core/ledger"
	"songforge/core/playback"
	"songforge/model"
	"songforge/repository"

	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	req    generation.Request
	userID string
	err    error
}

func (f *fakeSubmitter) Submit(ctx context.Context, req generation.Request, userID string) ([]*model.Song, error) {
	f.req, f.userID = req, userID
	if f.err != nil {
		return nil, f.err
	}
	title := generation.DeriveTitle(req.Variant())
	var songs []*model.Song
	for i, g := range generation.GuidanceScales {
		songs = append(songs, &model.Song{
			ID:            []string{"song-a", "song-b"}[i],
			UserID:        userID,
			Title:         title,
			GuidanceScale: g,
			Status:        model.SongStatusQueued,
		})
	}
	return songs, nil
}

type fakeLinks struct {
	played []string
}

func (f *fakeLinks) PlayURL(ctx context.Context, songID, userID string) (string, error) {
	if songID != "song-1" || userID != "alice" {
		return "", playback.ErrNotFoundOrForbidden
	}
	f.played = append(f.played, songID)
	return "https://cdn.example/audio/song-1.wav?sig=abc", nil
}

func (f *fakeLinks) ThumbnailURL(ctx context.Context, key string) (string, error) {
	return "https://cdn.example/" + key, nil
}

type fakeLedger struct {
	orders []ledger.Order
	grants []string
	grant  ledger.Grant
	err    error
}

func (f *fakeLedger) HandleOrder(ctx context.Context, order ledger.Order) (ledger.Grant, error) {
	f.orders = append(f.orders, order)
	return f.grant, f.err
}

func (f *fakeLedger) GrantManual(ctx context.Context, userID string, amount int, reference string) (bool, error) {
	f.grants = append(f.grants, reference)
	return true, nil
}

// fakeSongRepo stores songs in memory; only the methods the handlers call do real work.
type fakeSongRepo struct {
	repository.SongRepository
	songs map[string]*model.Song
}

func (f *fakeSongRepo) GetByID(ctx context.Context, id string) (*model.Song, error) {
	return f.songs[id], nil
}

func (f *fakeSongRepo) ListByUser(ctx context.Context, userID string) ([]*model.Song, error) {
	var out []*model.Song
	for _, s := range f.songs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSongRepo) ListPublished(ctx context.Context, limit, offset int) ([]*model.Song, error) {
	var out []*model.Song
	for _, s := range f.songs {
		if s.Published {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSongRepo) UpdateTitle(ctx context.Context, id, userID, title string) (bool, error) {
	s, ok := f.songs[id]
	if !ok || s.UserID != userID {
		return false, nil
	}
	s.Title = title
	return true, nil
}

func (f *fakeSongRepo) SetPublished(ctx context.Context, id, userID string, published bool) (bool, error) {
	s, ok := f.songs[id]
	if !ok || s.UserID != userID {
		return false, nil
	}
	s.Published = published
	return true, nil
}

type fakeUserRepo struct {
	users     map[string]*model.User
	createErr error
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return f.users[id], nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) GetCredits(ctx context.Context, id string) (int64, error) {
	u, ok := f.users[id]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	return u.Credits, nil
}

type fakeListCache struct {
	data        map[string][]model.SongResponse
	invalidated []string
}

func (f *fakeListCache) Get(ctx context.Context, userID string) ([]model.SongResponse, bool, error) {
	v, ok := f.data[userID]
	return v, ok, nil
}

func (f *fakeListCache) Set(ctx context.Context, userID string, songs []model.SongResponse) error {
	f.data[userID] = songs
	return nil
}

func (f *fakeListCache) InvalidateSongList(ctx context.Context, userID string) error {
	delete(f.data, userID)
	f.invalidated = append(f.invalidated, userID)
	return nil
}

// fakeBalanceCache mirrors cache.BalanceCache: entries carry the generation they were read under.
type fakeBalanceCache struct {
	data map[string]int64
	gen  map[string]int64
	at   map[string]int64

	// beforeSet runs between the database read and the cache write.
	beforeSet func()
}

func newFakeBalanceCache() *fakeBalanceCache {
	return &fakeBalanceCache{data: map[string]int64{}, gen: map[string]int64{}, at: map[string]int64{}}
}

func (f *fakeBalanceCache) Stamp(ctx context.Context, userID string) (int64, error) {
	return f.gen[userID], nil
}

func (f *fakeBalanceCache) Get(ctx context.Context, userID string) (int64, bool, error) {
	v, ok := f.data[userID]
	if !ok || f.at[userID] != f.gen[userID] {
		return 0, false, nil
	}
	return v, true, nil
}

func (f *fakeBalanceCache) Set(ctx context.Context, userID string, stamp, credits int64) error {
	if f.beforeSet != nil {
		f.beforeSet()
	}
	f.data[userID] = credits
	f.at[userID] = stamp
	return nil
}

func (f *fakeBalanceCache) InvalidateBalance(ctx context.Context, userID string) error {
	f.gen[userID]++
	delete(f.data, userID)
	return nil
}

const webhookSecret = "test-webhook-secret"

type testEnv struct {
	handler  http.Handler
	tokens   *auth.TokenManager
	verifier *billing.Verifier
	intake   *fakeSubmitter
	links    *fakeLinks
	ledger   *fakeLedger
	songs    *fakeSongRepo
	users    *fakeUserRepo
	lists    *fakeListCache
	balances *fakeBalanceCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	verifier, err := billing.NewVerifier(webhookSecret)
	require.NoError(t, err)

	env := &testEnv{
		tokens:   auth.NewTokenManager("jwt-secret", time.Hour),
		verifier: verifier,
		intake:   &fakeSubmitter{},
		links:    &fakeLinks{},
		ledger:   &fakeLedger{},
		songs: &fakeSongRepo{songs: map[string]*model.Song{
			"song-1": {ID: "song-1", UserID: "alice", Title: "Rain", Status: model.SongStatusReady,
				AudioKey: model.StringPtr("audio/song-1.wav"), ThumbnailKey: model.StringPtr("thumbs/song-1.png")},
			"song-2": {ID: "song-2", UserID: "alice", Title: "Pending", Status: model.SongStatusQueued},
			"song-3": {ID: "song-3", UserID: "bob", Title: "Hit", Status: model.SongStatusReady,
				AudioKey: model.StringPtr("audio/song-3.wav"), Published: true},
		}},
		users: &fakeUserRepo{users: map[string]*model.User{
			"alice": {ID: "alice", Email: "alice@example.com", Credits: 12},
		}},
		lists:    &fakeListCache{data: map[string][]model.SongResponse{}},
		balances: newFakeBalanceCache(),
	}

	h := NewAPIHandler(Deps{
		Intake:         env.intake,
		Links:          env.links,
		Ledger:         env.ledger,
		Songs:          env.songs,
		Users:          env.users,
		Lists:          env.lists,
		Balances:       env.balances,
		Tokens:         env.tokens,
		Verifier:       env.verifier,
		NewUserCredits: 5,
	})
	env.handler = corsMiddleware(NewRouter(h, NewRateLimiter(60, 2)))
	return env
}

func (e *testEnv) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := e.tokens.Issue(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}
