package model

import "time"

// ProcessedOrder records a billing order that has already been credited.
// The primary key is the provider's order id, so a redelivered webhook cannot credit twice.
type ProcessedOrder struct {
	OrderID   string    `json:"orderId" gorm:"primaryKey;size:64"`
	UserID    string    `json:"userId" gorm:"size:36;index;not null"`
	ProductID string    `json:"productId" gorm:"size:64"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName 指定表名
func (ProcessedOrder) TableName() string {
	return "processed_orders"
}

// AllModels lists every model migrated by AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{&User{}, &Song{}, &ProcessedOrder{}}
}
