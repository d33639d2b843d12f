// Package ledger credits user accounts for paid billing orders.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"songforge/logger"
	"songforge/metrics"
	"songforge/model"
	"songforge/repository"
)

// ErrIntegrationFault is returned when a paid order cannot be tied to a user.
// It is not retryable locally; the billing provider's redelivery and alerting handle it.
var ErrIntegrationFault = errors.New("order has no resolvable customer")

// Order is a confirmed purchase as delivered by the billing provider.
type Order struct {
	ID                 string
	ExternalCustomerID string
	ProductID          string
}

// Grant describes what HandleOrder did.
type Grant struct {
	UserID    string
	Tier      Tier
	Credits   int
	Duplicate bool
}

// CreditStore performs the atomic balance mutations.
type CreditStore interface {
	IncrementCredits(ctx context.Context, userID string, amount int) error
	ApplyOrder(ctx context.Context, order *model.ProcessedOrder) (bool, error)
}

// BalanceInvalidator drops cached balances.
type BalanceInvalidator interface {
	InvalidateBalance(ctx context.Context, userID string) error
}

// Ledger is the only component that changes credit balances.
type Ledger struct {
	catalog  Catalog
	store    CreditStore
	balances BalanceInvalidator
}

// New creates a ledger. balances may be nil.
func New(catalog Catalog, store CreditStore, balances BalanceInvalidator) *Ledger {
	return &Ledger{catalog: catalog, store: store, balances: balances}
}

// HandleOrder credits the order's customer once per order id.
// Orders without an id are credited without deduplication.
func (l *Ledger) HandleOrder(ctx context.Context, order Order) (Grant, error) {
	if order.ExternalCustomerID == "" {
		metrics.RecordOrder("integration_fault")
		logger.Error("[Ledger] order without external customer id",
			logger.String("orderId", order.ID),
			logger.String("productId", order.ProductID))
		return Grant{}, ErrIntegrationFault
	}

	tier, credits := l.catalog.Lookup(order.ProductID)
	if tier == TierUnknown {
		logger.Warn("[Ledger] unmapped product, granting 0 credits",
			logger.String("orderId", order.ID),
			logger.String("productId", order.ProductID))
	}

	grant := Grant{UserID: order.ExternalCustomerID, Tier: tier, Credits: credits}

	var err error
	if order.ID == "" {
		logger.Warn("[Ledger] order without id, crediting without dedupe", logger.String("userId", grant.UserID))
		err = l.store.IncrementCredits(ctx, grant.UserID, credits)
	} else {
		var applied bool
		applied, err = l.store.ApplyOrder(ctx, &model.ProcessedOrder{
			OrderID:   order.ID,
			UserID:    grant.UserID,
			ProductID: order.ProductID,
			Credits:   credits,
		})
		grant.Duplicate = err == nil && !applied
	}
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			metrics.RecordOrder("integration_fault")
			logger.Error("[Ledger] order customer does not match a user",
				logger.String("orderId", order.ID),
				logger.String("userId", grant.UserID))
			return Grant{}, fmt.Errorf("%w: user %s", ErrIntegrationFault, grant.UserID)
		}
		metrics.RecordOrder("error")
		return Grant{}, fmt.Errorf("credit order %s: %w", order.ID, err)
	}

	if grant.Duplicate {
		metrics.RecordOrder("duplicate")
		logger.Info("[Ledger] duplicate order ignored", logger.String("orderId", order.ID))
		return grant, nil
	}

	if tier == TierUnknown {
		metrics.RecordOrder("unmapped_product")
	} else {
		metrics.RecordOrder("credited")
	}
	metrics.RecordCreditsGranted(string(tier), credits)
	logger.Info("[Ledger] credits granted",
		logger.String("orderId", order.ID),
		logger.String("userId", grant.UserID),
		logger.String("tier", string(tier)),
		logger.Int("credits", credits))

	l.invalidate(ctx, grant.UserID)
	return grant, nil
}

// GrantManual credits amount to userID under reference, e.g. for support refunds.
// Re-running with the same reference is a no-op.
func (l *Ledger) GrantManual(ctx context.Context, userID string, amount int, reference string) (bool, error) {
	if userID == "" || reference == "" {
		return false, fmt.Errorf("user and reference are required")
	}
	if amount <= 0 {
		return false, fmt.Errorf("amount must be positive, got %d", amount)
	}

	applied, err := l.store.ApplyOrder(ctx, &model.ProcessedOrder{
		OrderID:   "manual:" + reference,
		UserID:    userID,
		ProductID: "manual",
		Credits:   amount,
	})
	if err != nil {
		return false, fmt.Errorf("manual grant for %s: %w", userID, err)
	}
	if applied {
		logger.Info("[Ledger] manual grant", logger.String("userId", userID), logger.Int("credits", amount), logger.String("reference", reference))
		l.invalidate(ctx, userID)
	}
	return applied, nil
}

func (l *Ledger) invalidate(ctx context.Context, userID string) {
	if l.balances == nil {
		return
	}
	if err := l.balances.InvalidateBalance(ctx, userID); err != nil {
		logger.Warn("[Ledger] failed to invalidate balance cache", logger.String("userId", userID), logger.ErrorField(err))
	}
}
