package server

import (
	"context"
	"encoding/json"
	"net/http"

	"songforge/core/auth"
	"songforge/core/billing"
	"songforge/core/generation"
	"songforge/core/ledger"
	"songforge/logger"
	"songforge/model"
	"songforge/repository"
)

// SongSubmitter queues a generation request.
type SongSubmitter interface {
	Submit(ctx context.Context, req generation.Request, userID string) ([]*model.Song, error)
}

// LinkIssuer signs play and thumbnail links.
type LinkIssuer interface {
	PlayURL(ctx context.Context, songID, userID string) (string, error)
	ThumbnailURL(ctx context.Context, key string) (string, error)
}

// CreditLedger applies paid orders and manual grants.
type CreditLedger interface {
	HandleOrder(ctx context.Context, order ledger.Order) (ledger.Grant, error)
	GrantManual(ctx context.Context, userID string, amount int, reference string) (bool, error)
}

// SongListCache caches per-user listings.
type SongListCache interface {
	Get(ctx context.Context, userID string) ([]model.SongResponse, bool, error)
	Set(ctx context.Context, userID string, songs []model.SongResponse) error
	InvalidateSongList(ctx context.Context, userID string) error
}

// BalanceCache caches credit balances. Set only sticks if no invalidation
// happened since the stamp was taken.
type BalanceCache interface {
	Stamp(ctx context.Context, userID string) (int64, error)
	Get(ctx context.Context, userID string) (int64, bool, error)
	Set(ctx context.Context, userID string, stamp, credits int64) error
}

// APIHandler 处理所有API请求
type APIHandler struct {
	intake   SongSubmitter
	links    LinkIssuer
	ledger   CreditLedger
	songs    repository.SongRepository
	users    repository.UserRepository
	lists    SongListCache
	balances BalanceCache
	tokens   *auth.TokenManager
	verifier *billing.Verifier

	newUserCredits int
}

// Deps groups the collaborators of APIHandler. Caches and Verifier may be nil.
type Deps struct {
	Intake         SongSubmitter
	Links          LinkIssuer
	Ledger         CreditLedger
	Songs          repository.SongRepository
	Users          repository.UserRepository
	Lists          SongListCache
	Balances       BalanceCache
	Tokens         *auth.TokenManager
	Verifier       *billing.Verifier
	NewUserCredits int
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(d Deps) *APIHandler {
	return &APIHandler{
		intake:         d.Intake,
		links:          d.Links,
		ledger:         d.Ledger,
		songs:          d.Songs,
		users:          d.Users,
		lists:          d.Lists,
		balances:       d.Balances,
		tokens:         d.Tokens,
		verifier:       d.Verifier,
		newUserCredits: d.NewUserCredits,
	}
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("[API] failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// HealthHandler answers liveness probes.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
