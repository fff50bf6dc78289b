package model

import "time"

// Recipient is a registered receiver of catalog notifications. The
// consumer fans out one notification record per active recipient for each
// consumed catalog event.
//
// Recipients can be deactivated instead of deleted so delivery history
// stays attributable.
type Recipient struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for Recipient.
func (r Recipient) TableName() string {
	return tablePrefix + "recipient"
}

// NewRecipient creates an active recipient.
func NewRecipient(email, name string) Recipient {
	return Recipient{
		ID:        0,
		Email:     email,
		Name:      name,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
}

// Deactivate stops further notifications to this recipient.
func (r *Recipient) Deactivate() {
	r.IsActive = false
}
