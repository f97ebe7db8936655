package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/telehealth-bff/internal/apierr"
	"github.com/wolfman30/telehealth-bff/internal/compliance"
	httpmiddleware "github.com/wolfman30/telehealth-bff/internal/http/middleware"
	"github.com/wolfman30/telehealth-bff/internal/payments"
	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

// VelocityAdmin inspects and resets payment velocity counters.
type VelocityAdmin interface {
	GetInitiationStats(ctx context.Context, userID string) (*payments.VelocityResult, error)
	ResetInitiationVelocity(ctx context.Context, userID string) error
}

// AuditQuerier reads the payment audit trail.
type AuditQuerier interface {
	QueryEvents(ctx context.Context, filter compliance.AuditFilter) ([]compliance.AuditEvent, error)
}

// AdminPaymentsHandler serves operator endpoints behind the admin JWT.
type AdminPaymentsHandler struct {
	velocity VelocityAdmin
	audit    AuditQuerier
	refunds  *PaymentsHandler
	logger   *logging.Logger
}

// NewAdminPaymentsHandler creates an admin payments handler. audit may be nil when no
// database is configured.
func NewAdminPaymentsHandler(velocity VelocityAdmin, audit AuditQuerier, logger *logging.Logger) *AdminPaymentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminPaymentsHandler{velocity: velocity, audit: audit, logger: logger}
}

// WithRefunds serves PhonePe refunds from payments under /phonepe/refund.
func (h *AdminPaymentsHandler) WithRefunds(payments *PaymentsHandler) *AdminPaymentsHandler {
	h.refunds = payments
	return h
}

// Routes returns the admin payment routes, mounted under /admin/payments.
func (h *AdminPaymentsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/velocity/{userId}", h.GetVelocity)
	r.Delete("/velocity/{userId}", h.ResetVelocity)
	r.Get("/audit", h.ListAuditEvents)
	if h.refunds != nil {
		r.Post("/phonepe/refund", h.refunds.Refund)
	}
	return r
}

// GetVelocity returns the current initiation counter for a user.
func (h *AdminPaymentsHandler) GetVelocity(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	stats, err := h.velocity.GetInitiationStats(r.Context(), userID)
	if err != nil {
		h.logger.Error("velocity stats failed", "user_id", userID, "error", err)
		apierr.Write(w, apierr.Transport(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       userID,
		"allowed":       stats.Allowed,
		"current_count": stats.CurrentCount,
		"max_allowed":   stats.MaxAllowed,
		"window_expiry": stats.WindowExpiry,
	})
}

// ResetVelocity clears the initiation counter for a user.
func (h *AdminPaymentsHandler) ResetVelocity(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if err := h.velocity.ResetInitiationVelocity(r.Context(), userID); err != nil {
		h.logger.Error("velocity reset failed", "user_id", userID, "error", err)
		apierr.Write(w, apierr.Transport(err))
		return
	}
	operator := ""
	if claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context()); ok {
		operator = claims.Subject
	}
	h.logger.Info("payment velocity reset", "user_id", userID, "operator", operator)
	writeJSON(w, http.StatusOK, map[string]any{"reset": true, "user_id": userID})
}

// ListAuditEvents returns audit events filtered by user, transaction or type.
func (h *AdminPaymentsHandler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []any{}, "count": 0})
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events, err := h.audit.QueryEvents(r.Context(), compliance.AuditFilter{
		UserID:                q.Get("user_id"),
		MerchantTransactionID: q.Get("txn_id"),
		EventType:             compliance.AuditEventType(q.Get("event_type")),
		Limit:                 limit,
	})
	if err != nil {
		h.logger.Error("audit query failed", "error", err)
		apierr.Write(w, apierr.Transport(err))
		return
	}
	if events == nil {
		events = []compliance.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
