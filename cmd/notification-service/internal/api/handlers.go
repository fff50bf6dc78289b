// Package api provides the operator HTTP API for the notification service:
// retry sweeps, DLQ inspection, and DLQ resolution.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/shelfwire/shelfwire"
	"github.com/shelfwire/shelfwire/model"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	sweeper   *shelfwire.Sweeper
	msgRepo   shelfwire.MessageRepository
	notifRepo shelfwire.NotificationRepository
	dlqRepo   shelfwire.DLQRepository
	topoRepo  shelfwire.TopologyRepository
	logger    shelfwire.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	sweeper *shelfwire.Sweeper,
	msgRepo shelfwire.MessageRepository,
	notifRepo shelfwire.NotificationRepository,
	dlqRepo shelfwire.DLQRepository,
	topoRepo shelfwire.TopologyRepository,
	logger shelfwire.Logger,
) *Handler {
	return &Handler{
		sweeper:   sweeper,
		msgRepo:   msgRepo,
		notifRepo: notifRepo,
		dlqRepo:   dlqRepo,
		topoRepo:  topoRepo,
		logger:    logger,
	}
}

// ResolveRequest carries a DLQ resolution request.
type ResolveRequest struct {
	ResolvedBy string `json:"resolvedBy"`
	Note       string `json:"note"`
}

// Validate validates the resolution request fields.
func (m ResolveRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ResolvedBy, validation.Required, validation.Length(1, 128)),
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
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleRetry handles POST /api/v1/notifications/retry
//
// With ?dryRun=true the eligible records are listed without touching them.
func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	if dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dryRun")); dryRun {
		records, err := h.sweeper.PreviewRetryable(r.Context())
		if err != nil {
			h.logger.Errorf("Failed to preview retryable notifications: %v", err)
			h.respondError(w, http.StatusInternalServerError, "Failed to preview retryable notifications", "RETRY_ERROR")
			return
		}
		h.respondSuccess(w, http.StatusOK, records, "Dry run: no records touched")
		return
	}

	result, err := h.sweeper.RetryFailedNotifications(r.Context())
	if err != nil {
		h.logger.Errorf("Retry sweep failed: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Retry sweep failed", "RETRY_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, result, "Retry sweep completed")
}

// HandleListNotifications handles GET /api/v1/notifications
//
// With ?referenceID= (and optional ?referenceType=, default BOOK) the
// records linked to an aggregate are listed; otherwise ?status= filters by
// delivery state (default failed).
func (h *Handler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}

	var (
		records []model.Notification
		err     error
	)
	if refID := r.URL.Query().Get("referenceID"); refID != "" {
		refType := r.URL.Query().Get("referenceType")
		if refType == "" {
			refType = "BOOK"
		}
		records, err = h.notifRepo.FindByReference(r.Context(), refID, strings.ToUpper(refType))
	} else {
		status := model.NotificationStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = model.NotificationStatusFailed
		}
		switch status {
		case model.NotificationStatusPending, model.NotificationStatusSent, model.NotificationStatusFailed:
		default:
			h.respondError(w, http.StatusBadRequest, "Unknown notification status", "VALIDATION_ERROR")
			return
		}
		records, err = h.notifRepo.FindByStatus(r.Context(), status, limit)
	}

	if err != nil {
		if shelfwire.IsNoData(err) {
			h.respondSuccess(w, http.StatusOK, []struct{}{}, "No notifications found")
			return
		}
		h.logger.Errorf("Failed to list notifications: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to list notifications", "LIST_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, records, "")
}

// QueueDepth reports the backlog of one declared queue.
type QueueDepth struct {
	Queue string `json:"queue"`
	Ready int    `json:"ready"`
}

// QueueReport summarizes broker backlog for operators.
type QueueReport struct {
	Queues                []QueueDepth `json:"queues"`
	UnresolvedDeadLetters int          `json:"unresolvedDeadLetters"`
}

// HandleListQueues handles GET /api/v1/queues
func (h *Handler) HandleListQueues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	queues, err := h.topoRepo.ListQueues(r.Context())
	if err != nil {
		h.logger.Errorf("Failed to list queues: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to list queues", "LIST_ERROR")
		return
	}

	report := QueueReport{Queues: make([]QueueDepth, 0, len(queues))}
	for _, q := range queues {
		ready, err := h.msgRepo.CountReady(r.Context(), q.Name)
		if err != nil {
			h.logger.Errorf("Failed to count ready messages in %s: %v", q.Name, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to count queue backlog", "LIST_ERROR")
			return
		}
		report.Queues = append(report.Queues, QueueDepth{Queue: q.Name, Ready: ready})
	}

	if report.UnresolvedDeadLetters, err = h.dlqRepo.CountUnresolved(r.Context()); err != nil {
		h.logger.Errorf("Failed to count unresolved DLQ entries: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to count unresolved DLQ entries", "LIST_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, report, "")
}

// HandleListDLQ handles GET /api/v1/dlq
func (h *Handler) HandleListDLQ(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}

	var (
		entries interface{}
		err     error
	)
	if queue := r.URL.Query().Get("queue"); queue != "" {
		entries, err = h.dlqRepo.FindByQueue(r.Context(), queue, limit)
	} else {
		entries, err = h.dlqRepo.FindUnresolved(r.Context(), limit)
	}

	if err != nil {
		if shelfwire.IsNoData(err) {
			h.respondSuccess(w, http.StatusOK, []struct{}{}, "No DLQ entries found")
			return
		}
		h.logger.Errorf("Failed to list DLQ entries: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to list DLQ entries", "LIST_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, entries, "")
}

// HandleDLQStats handles GET /api/v1/dlq/stats
func (h *Handler) HandleDLQStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	stats, err := h.dlqRepo.GetStats(r.Context())
	if err != nil {
		h.logger.Errorf("Failed to get DLQ stats: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to get DLQ stats", "STATS_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, stats, "")
}

// HandleDLQEntry routes POST /api/v1/dlq/:id/resolve and
// POST /api/v1/dlq/:id/republish.
func (h *Handler) HandleDLQEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	// Path: /api/v1/dlq/:id/:action
	parts := splitPath(r.URL.Path)
	if len(parts) != 5 {
		h.respondError(w, http.StatusBadRequest, "Invalid DLQ entry path", "INVALID_ID")
		return
	}

	id, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid DLQ entry ID", "INVALID_ID")
		return
	}

	switch parts[4] {
	case "resolve":
		h.resolveDLQEntry(w, r, id)
	case "republish":
		h.republishDLQEntry(w, r, id)
	default:
		h.respondError(w, http.StatusNotFound, "Unknown DLQ action", "NOT_FOUND")
	}
}

// resolveDLQEntry marks an entry as handled without replaying it.
func (h *Handler) resolveDLQEntry(w http.ResponseWriter, r *http.Request, id int64) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	entry, err := h.dlqRepo.Load(r.Context(), id)
	if err != nil {
		if shelfwire.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "DLQ entry not found", "NOT_FOUND")
			return
		}
		h.logger.Errorf("Failed to load DLQ entry %d: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to load DLQ entry", "LOAD_ERROR")
		return
	}

	if entry.IsResolved {
		h.respondError(w, http.StatusConflict, "DLQ entry already resolved", "ALREADY_RESOLVED")
		return
	}

	entry.Resolve(req.ResolvedBy, req.Note)
	if entry, err = h.dlqRepo.Save(r.Context(), entry); err != nil {
		h.logger.Errorf("Failed to resolve DLQ entry %d: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to resolve DLQ entry", "SAVE_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, entry, "DLQ entry resolved")
}

// republishDLQEntry replays an entry's message onto its original queue and
// marks the entry resolved.
func (h *Handler) republishDLQEntry(w http.ResponseWriter, r *http.Request, id int64) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	entry, err := h.dlqRepo.Load(r.Context(), id)
	if err != nil {
		if shelfwire.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "DLQ entry not found", "NOT_FOUND")
			return
		}
		h.logger.Errorf("Failed to load DLQ entry %d: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to load DLQ entry", "LOAD_ERROR")
		return
	}

	if entry.IsResolved {
		h.respondError(w, http.StatusConflict, "DLQ entry already resolved", "ALREADY_RESOLVED")
		return
	}

	queue, err := h.topoRepo.GetQueue(r.Context(), entry.Queue)
	if err != nil {
		h.logger.Errorf("Failed to load queue %s for DLQ entry %d: %v", entry.Queue, id, err)
		h.respondError(w, http.StatusInternalServerError, "Original queue no longer declared", "TOPOLOGY_ERROR")
		return
	}

	msg := entry.ToMessage(queue.MessageTTL)
	if _, err := h.msgRepo.Save(r.Context(), &msg); err != nil {
		h.logger.Errorf("Failed to republish DLQ entry %d: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to republish message", "SAVE_ERROR")
		return
	}

	entry.Resolve(req.ResolvedBy, "republished: "+req.Note)
	if entry, err = h.dlqRepo.Save(r.Context(), entry); err != nil {
		h.logger.Errorf("Republished DLQ entry %d but failed to mark resolved: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Republished but failed to mark resolved", "SAVE_ERROR")
		return
	}

	h.logger.Infof("Republished DLQ entry %d onto %s (message %d)", id, queue.Name, msg.ID)
	h.respondSuccess(w, http.StatusOK, entry, "DLQ entry republished")
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

	h.respondSuccess(w, http.StatusOK, health, "")
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
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// splitPath splits URL path by "/", dropping empty segments.
func splitPath(path string) []string {
	parts := []string{}
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
