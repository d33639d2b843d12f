package repository

import (
	"context"
	"errors"
	"fmt"

	"songforge/model"

	"gorm.io/gorm"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetCredits(ctx context.Context, id string) (int64, error)
}

// CreditRepository is the only writer of users.credits.
type CreditRepository interface {
	// IncrementCredits adds amount in one atomic UPDATE; ErrUserNotFound if no row matched.
	IncrementCredits(ctx context.Context, userID string, amount int) error
	// ApplyOrder records order and increments the user's credits in one transaction.
	// It returns false without touching credits when the order id was already recorded.
	ApplyOrder(ctx context.Context, order *model.ProcessedOrder) (bool, error)
}

type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a GORM-backed UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) Create(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: %s", ErrEmailTaken, user.Email)
	}
	return err
}

func (r *gormUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *gormUserRepository) first(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // User not found
		}
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) GetCredits(ctx context.Context, id string) (int64, error) {
	var user model.User
	err := r.db.WithContext(ctx).Select("credits").Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return user.Credits, nil
}

type gormCreditRepository struct {
	db *gorm.DB
}

// NewGormCreditRepository creates a GORM-backed CreditRepository.
func NewGormCreditRepository(db *gorm.DB) CreditRepository {
	return &gormCreditRepository{db: db}
}

func (r *gormCreditRepository) IncrementCredits(ctx context.Context, userID string, amount int) error {
	return incrementCredits(r.db.WithContext(ctx), userID, amount)
}

func incrementCredits(tx *gorm.DB, userID string, amount int) error {
	res := tx.Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("credits", gorm.Expr("credits + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *gormCreditRepository) ApplyOrder(ctx context.Context, order *model.ProcessedOrder) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			if isDuplicateKey(err) {
				return nil
			}
			return err
		}
		if err := incrementCredits(tx, order.UserID, order.Credits); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
