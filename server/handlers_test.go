package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"songforge/core/billing"
	"songforge/core/generation"
	"songforge/core/ledger"
	"songforge/model"
	"songforge/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/songs"},
		{http.MethodPost, "/api/songs"},
		{http.MethodGet, "/api/songs/song-1/play"},
		{http.MethodPut, "/api/songs/song-1/title"},
		{http.MethodPut, "/api/songs/song-1/published"},
		{http.MethodGet, "/api/credits"},
	} {
		rec := env.do(t, tc.method, tc.path, "", "{}")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodOptions, "/api/songs", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", `{"name":"Carol","email":"Carol@Example.com","password":"longenough"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp AuthResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "carol@example.com", resp.User.Email)
	assert.Equal(t, int64(5), resp.User.Credits)
	assert.Equal(t, []string{"signup:" + resp.User.ID}, env.ledger.grants)
	assert.NotContains(t, rec.Body.String(), "longenough")

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"carol@example.com","password":"longenough"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"nope","password":"longenough"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"dave@example.com","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"carol@example.com","password":"longenough"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	claims, err := env.tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"carol@example.com","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterLosesRaceOnEmail(t *testing.T) {
	env := newTestEnv(t)
	env.users.createErr = fmt.Errorf("%w: erin@example.com", repository.ErrEmailTaken)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"erin@example.com","password":"longenough"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, env.ledger.grants)

	env.users.createErr = errors.New("connection lost")
	rec = env.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"erin@example.com","password":"longenough"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGenerateSong(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/songs", "alice", `{"prompt":"lofi","describedLyrics":"late night coding"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp GenerateResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Songs, 2)
	assert.Equal(t, "Late night coding", resp.Songs[0].Title)
	assert.Equal(t, "in_progress", resp.Songs[0].Affordance)
	assert.Equal(t, "alice", env.intake.userID)
	assert.Equal(t, generation.Request{Prompt: "lofi", DescribedLyrics: "late night coding"}, env.intake.req)
}

func TestGenerateSongErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/songs", "alice", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.intake.err = fmt.Errorf("%w: %w", generation.ErrPartialSubmission, errors.New("redis down"))
	rec = env.do(t, http.MethodPost, "/api/songs", "alice", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGenerateSongRateLimited(t *testing.T) {
	env := newTestEnv(t)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, env.do(t, http.MethodPost, "/api/songs", "alice", `{}`).Code)
	}
	assert.Equal(t, []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}, codes)

	// another user has their own budget
	assert.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/songs", "bob", `{}`).Code)
}

func TestListSongs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/songs", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var songs []model.SongResponse
	decode(t, rec, &songs)
	require.Len(t, songs, 2)
	byID := map[string]model.SongResponse{}
	for _, s := range songs {
		byID[s.ID] = s
	}
	assert.Equal(t, "playable", byID["song-1"].Affordance)
	require.NotNil(t, byID["song-1"].ThumbnailURL)
	assert.Equal(t, "https://cdn.example/thumbs/song-1.png", *byID["song-1"].ThumbnailURL)
	assert.Equal(t, "in_progress", byID["song-2"].Affordance)
	assert.Nil(t, byID["song-2"].ThumbnailURL)
	assert.NotContains(t, rec.Body.String(), "audio/song-1.wav")

	// a listing with work in flight is not cached
	assert.NotContains(t, env.lists.data, "alice")
}

func TestListSongsSeesWorkerUpdates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/songs", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// the worker finishes song-2 directly in the database
	pending := env.songs.songs["song-2"]
	pending.Status = model.SongStatusReady
	pending.AudioKey = model.StringPtr("audio/song-2.wav")
	pending.ThumbnailKey = model.StringPtr("thumbs/song-2.png")

	rec = env.do(t, http.MethodGet, "/api/songs", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var songs []model.SongResponse
	decode(t, rec, &songs)
	byID := map[string]model.SongResponse{}
	for _, s := range songs {
		byID[s.ID] = s
	}
	assert.Equal(t, model.SongStatusReady, byID["song-2"].Status)
	assert.Equal(t, "playable", byID["song-2"].Affordance)
	require.NotNil(t, byID["song-2"].ThumbnailURL)

	// settled listings are cached and served from the cache
	assert.Len(t, env.lists.data["alice"], 2)
	env.lists.data["alice"] = []model.SongResponse{{ID: "cached"}}
	rec = env.do(t, http.MethodGet, "/api/songs", "alice", "")
	decode(t, rec, &songs)
	require.Len(t, songs, 1)
	assert.Equal(t, "cached", songs[0].ID)
}

func TestListPublished(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/songs/published?limit=500", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var songs []model.SongResponse
	decode(t, rec, &songs)
	require.Len(t, songs, 1)
	assert.Equal(t, "song-3", songs[0].ID)
}

func TestPlayURL(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/songs/song-1/play", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp PlayURLResponse
	decode(t, rec, &resp)
	assert.Contains(t, resp.URL, "audio/song-1.wav")

	missing := env.do(t, http.MethodGet, "/api/songs/nope/play", "alice", "")
	forbidden := env.do(t, http.MethodGet, "/api/songs/song-1/play", "mallory", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, http.StatusNotFound, forbidden.Code)
	assert.Equal(t, missing.Body.String(), forbidden.Body.String())
}

func TestRenameSong(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/songs/song-1/title", "alice", `{"title":"  Storm  "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Storm", env.songs.songs["song-1"].Title)
	assert.Equal(t, []string{"alice"}, env.lists.invalidated)

	rec = env.do(t, http.MethodPut, "/api/songs/song-1/title", "alice", `{"title":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/songs/song-1/title", "bob", `{"title":"Mine"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Storm", env.songs.songs["song-1"].Title)
}

func TestSetPublished(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/songs/song-1/published", "alice", `{"published":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.songs.songs["song-1"].Published)
	assert.Equal(t, []string{"alice"}, env.lists.invalidated)

	rec = env.do(t, http.MethodPut, "/api/songs/song-2/published", "alice", `{"published":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.songs.songs["song-2"].Published)

	rec = env.do(t, http.MethodPut, "/api/songs/song-2/published", "alice", `{"published":false}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/songs/song-3/published", "alice", `{"published":false}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, env.songs.songs["song-3"].Published)
}

func TestGetCredits(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/credits", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp CreditsResponse
	decode(t, rec, &resp)
	assert.Equal(t, int64(12), resp.Credits)
	assert.Equal(t, int64(12), env.balances.data["alice"])

	env.balances.data["alice"] = 99
	rec = env.do(t, http.MethodGet, "/api/credits", "alice", "")
	decode(t, rec, &resp)
	assert.Equal(t, int64(99), resp.Credits)

	rec = env.do(t, http.MethodGet, "/api/credits", "ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCreditsDoesNotCacheBalanceOverlappingGrant(t *testing.T) {
	env := newTestEnv(t)

	// a paid order commits and invalidates after the handler read the database
	env.balances.beforeSet = func() {
		env.balances.beforeSet = nil
		env.users.users["alice"].Credits += 10
		require.NoError(t, env.balances.InvalidateBalance(context.Background(), "alice"))
	}

	rec := env.do(t, http.MethodGet, "/api/credits", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp CreditsResponse
	decode(t, rec, &resp)
	assert.Equal(t, int64(12), resp.Credits)

	rec = env.do(t, http.MethodGet, "/api/credits", "alice", "")
	decode(t, rec, &resp)
	assert.Equal(t, int64(22), resp.Credits)
}

func (e *testEnv) deliver(t *testing.T, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/polar", strings.NewReader(body))
	now := time.Now()
	req.Header.Set(billing.HeaderID, "msg_1")
	req.Header.Set(billing.HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
	if sign {
		sig, err := e.verifier.Sign("msg_1", now, []byte(body))
		require.NoError(t, err)
		req.Header.Set(billing.HeaderSignature, sig)
	} else {
		req.Header.Set(billing.HeaderSignature, "v1,Zm9yZ2Vk")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

const paidOrder = `{"type":"order.paid","data":{"id":"ord_1","product_id":"20e6fbda-4fec-4336-996e-50abbe2821f0","customer":{"external_id":"alice"}}}`

func TestPolarWebhook(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.grant = ledger.Grant{UserID: "alice", Tier: ledger.TierMedium, Credits: 25}

	rec := env.deliver(t, paidOrder, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp WebhookResponse
	decode(t, rec, &resp)
	assert.Equal(t, 25, resp.Credits)
	assert.False(t, resp.Duplicate)
	require.Len(t, env.ledger.orders, 1)
	assert.Equal(t, ledger.Order{ID: "ord_1", ExternalCustomerID: "alice", ProductID: "20e6fbda-4fec-4336-996e-50abbe2821f0"}, env.ledger.orders[0])
}

func TestPolarWebhookRejectsForgery(t *testing.T) {
	env := newTestEnv(t)

	rec := env.deliver(t, paidOrder, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.ledger.orders)
}

func TestPolarWebhookIgnoresOtherEvents(t *testing.T) {
	env := newTestEnv(t)

	rec := env.deliver(t, `{"type":"subscription.created","data":{}}`, true)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, env.ledger.orders)
}

func TestPolarWebhookIntegrationFault(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.err = ledger.ErrIntegrationFault

	rec := env.deliver(t, `{"type":"order.paid","data":{"id":"ord_2","product_id":"x","customer":{"external_id":null}}}`, true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
