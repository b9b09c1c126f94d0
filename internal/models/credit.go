package models

import "time"

// UserCredit holds the spendable credit balance of a user
type UserCredit struct {
	UserID    string    `gorm:"primaryKey;type:varchar(255)" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreditTransaction is an append-only journal entry. Reference is unique so the
// same debit cannot be applied twice.
type CreditTransaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index;type:varchar(255);not null" json:"user_id"`
	Amount    int64     `gorm:"not null" json:"amount"` // negative for debits
	Reason    string    `gorm:"type:varchar(64);not null" json:"reason"`
	Reference string    `gorm:"uniqueIndex;type:varchar(128);not null" json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}
