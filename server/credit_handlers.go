package server

import (
	"errors"
	"io"
	"net/http"

	"songforge/core/billing"
	"songforge/core/ledger"
	"songforge/logger"
	"songforge/metrics"
	"songforge/repository"
)

const maxWebhookBodyLen = 1 << 20

// CreditsResponse is the balance of the current user.
type CreditsResponse struct {
	Credits int64 `json:"credits"`
}

// GetCreditsHandler returns the balance, reading through the balance cache.
func (h *APIHandler) GetCreditsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUser(r)

	cacheable := false
	var stamp int64
	if h.balances != nil {
		credits, ok, err := h.balances.Get(ctx, userID)
		if err != nil {
			logger.Warn("[Credits] 读取缓存失败", logger.String("userId", userID), logger.ErrorField(err))
		} else if ok {
			writeJSON(w, http.StatusOK, CreditsResponse{Credits: credits})
			return
		}
		// stamp before reading so a grant that lands in between discards our write
		if stamp, err = h.balances.Stamp(ctx, userID); err != nil {
			logger.Warn("[Credits] 读取缓存版本失败", logger.String("userId", userID), logger.ErrorField(err))
		} else {
			cacheable = true
		}
	}

	credits, err := h.users.GetCredits(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		logger.Error("[Credits] 查询余额失败", logger.String("userId", userID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to load credits")
		return
	}

	if cacheable {
		if err := h.balances.Set(ctx, userID, stamp, credits); err != nil {
			logger.Warn("[Credits] 写入缓存失败", logger.String("userId", userID), logger.ErrorField(err))
		}
	}
	writeJSON(w, http.StatusOK, CreditsResponse{Credits: credits})
}

// WebhookResponse acknowledges a billing delivery.
type WebhookResponse struct {
	Received  bool   `json:"received"`
	Event     string `json:"event,omitempty"`
	Credits   int    `json:"credits,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// PolarWebhookHandler verifies and applies billing events.
// Non-2xx replies make the provider redeliver.
func (h *APIHandler) PolarWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		logger.Error("[Webhook] webhook secret not configured")
		writeError(w, http.StatusServiceUnavailable, "Webhook not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyLen))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.verifier.Verify(r.Header, body); err != nil {
		logger.Warn("[Webhook] 签名校验失败",
			logger.String("webhookId", r.Header.Get(billing.HeaderID)),
			logger.ErrorField(err))
		metrics.RecordOrder("rejected")
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	eventType, order, err := billing.ParseEvent(body)
	if err != nil {
		logger.Warn("[Webhook] 无法解析事件", logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, "Invalid event payload")
		return
	}
	if order == nil {
		logger.Debug("[Webhook] 忽略事件", logger.String("type", eventType))
		writeJSON(w, http.StatusAccepted, WebhookResponse{Received: true, Event: eventType})
		return
	}

	grant, err := h.ledger.HandleOrder(r.Context(), *order)
	if err != nil {
		if errors.Is(err, ledger.ErrIntegrationFault) {
			logger.Error("[Webhook] 订单无法关联用户",
				logger.String("orderId", order.ID),
				logger.String("productId", order.ProductID),
				logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Order could not be attributed")
			return
		}
		logger.Error("[Webhook] 订单处理失败", logger.String("orderId", order.ID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to apply order")
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{
		Received:  true,
		Event:     eventType,
		Credits:   grant.Credits,
		Duplicate: grant.Duplicate,
	})
}
