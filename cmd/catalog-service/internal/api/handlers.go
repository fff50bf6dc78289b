// Package api provides HTTP handlers for the catalog service REST API.
// Book mutations are accepted, validated, and published as domain events.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"github.com/shelfwire/shelfwire"
	"github.com/shelfwire/shelfwire/model"
)

// HeaderCorrelationID is the HTTP header callers use to propagate a trace id.
const HeaderCorrelationID = "X-Correlation-ID"

// Handler holds dependencies for API handlers.
type Handler struct {
	publisher  *shelfwire.Publisher
	logger     shelfwire.Logger
	source     string
	maxRetries int
}

// NewHandler creates a new API handler.
func NewHandler(publisher *shelfwire.Publisher, logger shelfwire.Logger, source string, maxRetries int) *Handler {
	return &Handler{
		publisher:  publisher,
		logger:     logger,
		source:     source,
		maxRetries: maxRetries,
	}
}

// BookRequest carries the payload for book create and update events.
type BookRequest struct {
	BookID    string  `json:"bookID"`
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	ISBN      string  `json:"isbn"`
	Price     float64 `json:"price"`
	Genre     string  `json:"genre"`
	Publisher string  `json:"publisher"`
}

// Validate validates the book request fields.
func (m BookRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.BookID, validation.Required),
		validation.Field(&m.Title, validation.Required, validation.Length(1, 500)),
		validation.Field(&m.Author, validation.Required, validation.Length(1, 255)),
		validation.Field(&m.ISBN, validation.Required, validation.Length(10, 17)),
		validation.Field(&m.Price, validation.Min(0.0)),
	)
}

// DeleteBookRequest carries the payload for a book deletion event.
type DeleteBookRequest struct {
	BookID     string `json:"bookID"`
	DeletedBy  string `json:"deletedBy"`
	SoftDelete bool   `json:"softDelete"`
}

// Validate validates the deletion request fields.
func (m DeleteBookRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.BookID, validation.Required),
		validation.Field(&m.DeletedBy, validation.Required, validation.Length(1, 255)),
	)
}

// SendNotificationRequest carries a direct send request.
type SendNotificationRequest struct {
	Recipient     string `json:"recipient"`
	RecipientName string `json:"recipientName"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
}

// Validate validates the send request fields.
func (m SendNotificationRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Recipient, validation.Required, is.Email),
		validation.Field(&m.Subject, validation.Required, validation.Length(1, 500)),
		validation.Field(&m.Body, validation.Required),
	)
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Message       string      `json:"message,omitempty"`
	CorrelationID string      `json:"correlationID,omitempty"`
}

// HandleCreateBook handles POST /api/v1/books/events/created
func (h *Handler) HandleCreateBook(w http.ResponseWriter, r *http.Request) {
	h.handleBookEvent(w, r, model.NewBookCreated)
}

// HandleUpdateBook handles POST /api/v1/books/events/updated
func (h *Handler) HandleUpdateBook(w http.ResponseWriter, r *http.Request) {
	h.handleBookEvent(w, r, model.NewBookUpdated)
}

func (h *Handler) handleBookEvent(w http.ResponseWriter, r *http.Request,
	build func(bookID, source, correlationID string, book model.BookPayload) model.Envelope) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	correlationID := h.correlationID(r)
	env := build(req.BookID, h.source, correlationID, model.BookPayload{
		Title:     req.Title,
		Author:    req.Author,
		ISBN:      req.ISBN,
		Price:     req.Price,
		Genre:     req.Genre,
		Publisher: req.Publisher,
	})

	h.publish(w, r, env, correlationID)
}

// HandleDeleteBook handles POST /api/v1/books/events/deleted
func (h *Handler) HandleDeleteBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req DeleteBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	correlationID := h.correlationID(r)
	env := model.NewBookDeleted(req.BookID, h.source, correlationID, model.DeletionPayload{
		DeletedBy:  req.DeletedBy,
		SoftDelete: req.SoftDelete,
	})

	h.publish(w, r, env, correlationID)
}

// HandleSendNotification handles POST /api/v1/notifications/send
func (h *Handler) HandleSendNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req SendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	correlationID := h.correlationID(r)
	env := model.NewNotificationSend(uuid.NewString(), h.source, correlationID, model.SendPayload{
		Recipient:     req.Recipient,
		RecipientName: req.RecipientName,
		Subject:       req.Subject,
		Body:          req.Body,
	})

	h.publish(w, r, env, correlationID)
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	h.respondSuccess(w, http.StatusOK, health, "", "")
}

// publish hands the envelope to the publisher and maps the result to HTTP.
func (h *Handler) publish(w http.ResponseWriter, r *http.Request, env model.Envelope, correlationID string) {
	result, err := h.publisher.PublishWithRetry(r.Context(), env, h.maxRetries)
	if err != nil {
		h.logger.Errorf("Failed to publish %s event: %v", env.Kind, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to publish event", "PUBLISH_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusAccepted, result, "Event published", correlationID)
}

// correlationID takes the caller's X-Correlation-ID or mints a fresh one,
// so every event carries a trace id end to end.
func (h *Handler) correlationID(r *http.Request) string {
	if id := r.Header.Get(HeaderCorrelationID); id != "" {
		return id
	}
	return uuid.NewString()
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message, correlationID string) {
	w.Header().Set("Content-Type", "application/json")
	if correlationID != "" {
		w.Header().Set(HeaderCorrelationID, correlationID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success:       true,
		Data:          data,
		Message:       message,
		CorrelationID: correlationID,
	})
}
