package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"songforge/core/generation"
	"songforge/core/playback"
	"songforge/core/presentation"
	"songforge/logger"
	"songforge/model"

	"github.com/gorilla/mux"
)

const (
	maxTitleLength    = 255
	defaultFeedLimit  = 20
	maxFeedLimit      = 100
	maxRequestBodyLen = 64 << 10
)

// GenerateResponse lists the songs queued for one submission.
type GenerateResponse struct {
	Songs []model.SongResponse `json:"songs"`
}

// GenerateSongHandler queues a submission (two variants) for the current user.
func (h *APIHandler) GenerateSongHandler(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	var req generation.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyLen)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	songs, err := h.intake.Submit(r.Context(), req, userID)
	if err != nil {
		logger.Error("[Generate] 提交失败", logger.String("userId", userID), logger.ErrorField(err))
		if errors.Is(err, generation.ErrPartialSubmission) {
			writeError(w, http.StatusInternalServerError, "Song generation could not be fully queued, please try again")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to queue song generation")
		return
	}

	resp := GenerateResponse{Songs: make([]model.SongResponse, 0, len(songs))}
	for _, s := range songs {
		item := s.ToResponse()
		item.Affordance = string(presentation.AffordanceFor(s.Status))
		resp.Songs = append(resp.Songs, item)
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// ListSongsHandler returns the current user's songs, newest first.
func (h *APIHandler) ListSongsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUser(r)

	if h.lists != nil {
		cached, ok, err := h.lists.Get(ctx, userID)
		if err != nil {
			logger.Warn("[Songs] 读取缓存失败", logger.String("userId", userID), logger.ErrorField(err))
		} else if ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	songs, err := h.songs.ListByUser(ctx, userID)
	if err != nil {
		logger.Error("[Songs] 获取歌曲列表失败", logger.String("userId", userID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to list songs")
		return
	}

	resp := h.toResponses(ctx, songs)
	// the worker updates rows without touching the cache, so only settled listings are cached
	if h.lists != nil && settled(resp) {
		if err := h.lists.Set(ctx, userID, resp); err != nil {
			logger.Warn("[Songs] 写入缓存失败", logger.String("userId", userID), logger.ErrorField(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func settled(songs []model.SongResponse) bool {
	for _, s := range songs {
		if s.Affordance == string(presentation.AffordanceInProgress) {
			return false
		}
	}
	return true
}

// ListPublishedHandler returns the public feed.
func (h *APIHandler) ListPublishedHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultFeedLimit)
	if limit <= 0 || limit > maxFeedLimit {
		limit = defaultFeedLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	songs, err := h.songs.ListPublished(r.Context(), limit, offset)
	if err != nil {
		logger.Error("[Songs] 获取公开歌曲失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to list songs")
		return
	}
	writeJSON(w, http.StatusOK, h.toResponses(r.Context(), songs))
}

// toResponses decorates songs with their affordance and a signed thumbnail link.
func (h *APIHandler) toResponses(ctx context.Context, songs []*model.Song) []model.SongResponse {
	resp := make([]model.SongResponse, 0, len(songs))
	for _, s := range songs {
		item := s.ToResponse()
		item.Affordance = string(presentation.AffordanceFor(s.Status))
		if key := model.Deref(s.ThumbnailKey); key != "" {
			url, err := h.links.ThumbnailURL(ctx, key)
			if err != nil {
				logger.Warn("[Songs] thumbnail signing failed", logger.String("songId", s.ID), logger.ErrorField(err))
			} else {
				item.ThumbnailURL = &url
			}
		}
		resp = append(resp, item)
	}
	return resp
}

// PlayURLResponse carries a signed audio link.
type PlayURLResponse struct {
	URL string `json:"url"`
}

// PlayURLHandler issues a signed link and counts a listen.
func (h *APIHandler) PlayURLHandler(w http.ResponseWriter, r *http.Request) {
	songID := mux.Vars(r)["id"]
	userID := currentUser(r)

	url, err := h.links.PlayURL(r.Context(), songID, userID)
	if err != nil {
		if errors.Is(err, playback.ErrNotFoundOrForbidden) {
			writeError(w, http.StatusNotFound, "Song not found")
			return
		}
		logger.Error("[Play] 获取播放地址失败", logger.String("songId", songID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create play link")
		return
	}
	writeJSON(w, http.StatusOK, PlayURLResponse{URL: url})
}

// RenameRequest is the body of a rename.
type RenameRequest struct {
	Title string `json:"title"`
}

// RenameSongHandler changes the title of a song owned by the current user.
func (h *APIHandler) RenameSongHandler(w http.ResponseWriter, r *http.Request) {
	songID := mux.Vars(r)["id"]
	userID := currentUser(r)

	var req RenameRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyLen)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > maxTitleLength {
		writeError(w, http.StatusBadRequest, "Title must be between 1 and 255 characters")
		return
	}

	ok, err := h.songs.UpdateTitle(r.Context(), songID, userID, title)
	if err != nil {
		logger.Error("[Rename] 重命名失败", logger.String("songId", songID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to rename song")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Song not found")
		return
	}

	h.invalidateList(r.Context(), userID)
	writeJSON(w, http.StatusOK, map[string]string{"id": songID, "title": title})
}

// PublishRequest is the body of a visibility change.
type PublishRequest struct {
	Published bool `json:"published"`
}

// SetPublishedHandler toggles visibility of a song owned by the current user.
// Only ready songs can be published.
func (h *APIHandler) SetPublishedHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	songID := mux.Vars(r)["id"]
	userID := currentUser(r)

	var req PublishRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyLen)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	song, err := h.songs.GetByID(ctx, songID)
	if err != nil {
		logger.Error("[Publish] 查询歌曲失败", logger.String("songId", songID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to update song")
		return
	}
	if song == nil || song.UserID != userID {
		writeError(w, http.StatusNotFound, "Song not found")
		return
	}
	if req.Published && (song.Status != model.SongStatusReady || !song.HasResult()) {
		writeError(w, http.StatusConflict, "Only finished songs can be published")
		return
	}

	ok, err := h.songs.SetPublished(ctx, songID, userID, req.Published)
	if err != nil {
		logger.Error("[Publish] 更新失败", logger.String("songId", songID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to update song")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Song not found")
		return
	}

	h.invalidateList(ctx, userID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": songID, "published": req.Published})
}

func (h *APIHandler) invalidateList(ctx context.Context, userID string) {
	if h.lists == nil {
		return
	}
	if err := h.lists.InvalidateSongList(ctx, userID); err != nil {
		logger.Warn("[Songs] 缓存失效失败", logger.String("userId", userID), logger.ErrorField(err))
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
