package model

import (
	"database/sql"
	"time"
)

// NotificationStatus represents the delivery state of a notification record.
type NotificationStatus string

const (
	// NotificationStatusPending indicates the record is awaiting a delivery
	// attempt, either freshly created or reset for retry.
	NotificationStatusPending NotificationStatus = "pending"

	// NotificationStatusSent indicates successful delivery. Terminal.
	NotificationStatusSent NotificationStatus = "sent"

	// NotificationStatusFailed indicates a failed delivery attempt.
	NotificationStatusFailed NotificationStatus = "failed"
)

// NotificationType tags what caused a notification.
type NotificationType string

const (
	// NotificationBookCreated is sent when a book is added to the catalog.
	NotificationBookCreated NotificationType = "BOOK_CREATED"

	// NotificationBookUpdated is sent when a book changes.
	NotificationBookUpdated NotificationType = "BOOK_UPDATED"

	// NotificationBookDeleted is sent when a book is removed.
	NotificationBookDeleted NotificationType = "BOOK_DELETED"

	// NotificationGeneric covers direct send requests.
	NotificationGeneric NotificationType = "GENERIC"
)

// DefaultMaxRetries is the default retry budget. The effective budget is
// configured on retry.Policy and passed into the state transitions; the
// policy is the single source of truth at run time.
const DefaultMaxRetries = 3

// Notification is the durable record of one delivery attempt and its
// outcome, independent of transport.
//
// State machine (the only legal transitions):
//
//	create           -> PENDING, RetryCount = 0
//	attempt succeeds -> SENT, SentAt = now, LastError cleared
//	attempt fails    -> FAILED, LastError set, RetryCount += 1
//	retry reset      -> PENDING, LastError cleared (only while CanRetry)
//
// SENT is terminal. RetryCount never decreases. Records are soft-deleted
// via the active flag to preserve audit history.
type Notification struct {
	ID            int64              `json:"id"`
	Recipient     string             `json:"recipient"`
	RecipientName string             `json:"recipientName" db:"recipient_name"`
	Subject       string             `json:"subject"`
	Body          string             `json:"body"`
	Type          NotificationType   `json:"type" db:"type"`
	Status        NotificationStatus `json:"status" db:"status"`
	SentAt        sql.NullTime       `json:"sentAt" db:"sent_at"`
	RetryCount    int                `json:"retryCount" db:"retry_count"`
	LastError     sql.NullString     `json:"lastError" db:"last_error"`
	ReferenceID   string             `json:"referenceID" db:"reference_id"`
	ReferenceType string             `json:"referenceType" db:"reference_type"`
	CorrelationID string             `json:"correlationID" db:"correlation_id"`
	IsActive      bool               `json:"isActive" db:"is_active"`
	CreatedAt     time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time          `json:"updatedAt" db:"updated_at"`
}

// TableName returns the database table name for Notification.
func (n *Notification) TableName() string {
	return tablePrefix + "notification"
}

// NewNotification creates a pending notification record.
func NewNotification(recipient, recipientName, subject, body string, typ NotificationType) Notification {
	now := time.Now()
	return Notification{
		ID:            0,
		Recipient:     recipient,
		RecipientName: recipientName,
		Subject:       subject,
		Body:          body,
		Type:          typ,
		Status:        NotificationStatusPending,
		SentAt:        sql.NullTime{},
		RetryCount:    0,
		LastError:     sql.NullString{},
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// SetReference links the record back to the aggregate that caused it.
func (n *Notification) SetReference(referenceID, referenceType string) {
	n.ReferenceID = referenceID
	n.ReferenceType = referenceType
}

// MarkSent records a successful delivery. A SENT record always has a
// non-null SentAt and a null LastError.
func (n *Notification) MarkSent() error {
	if n.Status == NotificationStatusSent {
		return ErrAlreadySent
	}
	now := time.Now()
	n.Status = NotificationStatusSent
	n.SentAt = sql.NullTime{Time: now, Valid: true}
	n.LastError = sql.NullString{}
	n.UpdatedAt = now
	return nil
}

// MarkFailed records a failed delivery attempt. The retry count only ever
// increments here; a timed-out attempt is treated identically.
func (n *Notification) MarkFailed(err error) error {
	if n.Status == NotificationStatusSent {
		return ErrAlreadySent
	}
	n.Status = NotificationStatusFailed
	n.RetryCount++
	if err != nil {
		n.LastError = sql.NullString{String: err.Error(), Valid: true}
	} else {
		n.LastError = sql.NullString{}
	}
	n.UpdatedAt = time.Now()
	return nil
}

// CanRetry reports whether the record is still inside the given retry
// budget.
func (n *Notification) CanRetry(maxRetries int) bool {
	if n.RetryCount >= maxRetries {
		return false
	}
	return n.Status == NotificationStatusFailed || n.Status == NotificationStatusPending
}

// ResetForRetry returns a failed or pending record to PENDING ahead of a
// new delivery attempt. The retry count is left unchanged until the next
// attempt records its outcome.
func (n *Notification) ResetForRetry(maxRetries int) error {
	if !n.CanRetry(maxRetries) {
		return ErrRetryBudgetExhausted
	}
	n.Status = NotificationStatusPending
	n.LastError = sql.NullString{}
	n.UpdatedAt = time.Now()
	return nil
}

// Deactivate soft-deletes the record. The row is kept for audit history.
func (n *Notification) Deactivate() {
	n.IsActive = false
	n.UpdatedAt = time.Now()
}

// NotificationTypeForEvent maps an event kind to its notification type.
func NotificationTypeForEvent(kind EventKind) NotificationType {
	switch kind {
	case EventBookCreated:
		return NotificationBookCreated
	case EventBookUpdated:
		return NotificationBookUpdated
	case EventBookDeleted:
		return NotificationBookDeleted
	default:
		return NotificationGeneric
	}
}

// Domain errors returned by Notification state transitions.
var (
	// ErrAlreadySent indicates an attempt to leave the terminal SENT state.
	ErrAlreadySent = DomainError{Code: "ALREADY_SENT", Message: "Notification already sent"}

	// ErrRetryBudgetExhausted indicates the record has used up its retry
	// budget and needs operator intervention.
	ErrRetryBudgetExhausted = DomainError{Code: "RETRY_BUDGET_EXHAUSTED", Message: "Notification retry budget exhausted"}
)

// DomainError represents a domain-level business rule violation.
type DomainError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
}

func (e DomainError) Error() string {
	return e.Message
}
