// Package compliance records an append-only audit trail of payment operations.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of payment event.
type AuditEventType string

const (
	// EventPaymentInitiated is logged when a PhonePe payment is started.
	EventPaymentInitiated AuditEventType = "payment.initiated"
	// EventPaymentStatusChecked is logged when a transaction status is queried.
	EventPaymentStatusChecked AuditEventType = "payment.status_checked"
	// EventRefundRequested is logged when a refund is submitted.
	EventRefundRequested AuditEventType = "payment.refund_requested"
	// EventCallbackReceived is logged when PhonePe posts a server callback.
	EventCallbackReceived AuditEventType = "payment.callback_received"
	// EventVelocityBlocked is logged when a velocity limit rejects a request.
	EventVelocityBlocked AuditEventType = "payment.velocity_blocked"
)

// AuditEvent represents an immutable payment audit record.
type AuditEvent struct {
	ID                    string          `json:"id"`
	EventType             AuditEventType  `json:"event_type"`
	UserID                string          `json:"user_id,omitempty"`
	MerchantTransactionID string          `json:"merchant_transaction_id,omitempty"`
	AmountPaise           int64           `json:"amount_paise,omitempty"`
	State                 string          `json:"state,omitempty"`
	Details               json.RawMessage `json:"details,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	ProviderCode  string `json:"provider_code,omitempty"`
	ProviderTxnID string `json:"provider_transaction_id,omitempty"`
	// Refunds
	OriginalTransactionID string `json:"original_transaction_id,omitempty"`
	// Velocity blocks
	CheckType    string `json:"check_type,omitempty"`
	CurrentCount int    `json:"current_count,omitempty"`
	MaxAllowed   int    `json:"max_allowed,omitempty"`
	// Callbacks
	SignatureValid *bool `json:"signature_valid,omitempty"`
}

// AuditService writes payment audit events to Postgres.
type AuditService struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db, now: time.Now}
}

// LogEvent records a payment audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if s == nil || s.db == nil {
		return nil
	}
	if event.EventType == "" {
		return fmt.Errorf("compliance: audit event type required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	details := event.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO payment_audit_events (
			id, event_type, user_id, merchant_transaction_id,
			amount_paise, state, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		nullString(event.UserID),
		nullString(event.MerchantTransactionID),
		nullInt(event.AmountPaise),
		nullString(event.State),
		[]byte(details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

// LogPaymentInitiated logs a payment initiation.
func (s *AuditService) LogPaymentInitiated(ctx context.Context, userID, merchantTxnID string, amountPaise int64) error {
	return s.LogEvent(ctx, AuditEvent{
		EventType:             EventPaymentInitiated,
		UserID:                userID,
		MerchantTransactionID: merchantTxnID,
		AmountPaise:           amountPaise,
		State:                 "PENDING",
	})
}

// LogStatusChecked logs a status query with the state PhonePe reported.
func (s *AuditService) LogStatusChecked(ctx context.Context, userID, merchantTxnID, state, providerCode string) error {
	detailsJSON, _ := json.Marshal(AuditDetails{ProviderCode: providerCode})
	return s.LogEvent(ctx, AuditEvent{
		EventType:             EventPaymentStatusChecked,
		UserID:                userID,
		MerchantTransactionID: merchantTxnID,
		State:                 state,
		Details:               detailsJSON,
	})
}

// LogRefundRequested logs a refund submission.
func (s *AuditService) LogRefundRequested(ctx context.Context, userID, refundTxnID, originalTxnID string, amountPaise int64) error {
	detailsJSON, _ := json.Marshal(AuditDetails{OriginalTransactionID: originalTxnID})
	return s.LogEvent(ctx, AuditEvent{
		EventType:             EventRefundRequested,
		UserID:                userID,
		MerchantTransactionID: refundTxnID,
		AmountPaise:           amountPaise,
		Details:               detailsJSON,
	})
}

// LogCallbackReceived logs a server-to-server callback, valid or not.
func (s *AuditService) LogCallbackReceived(ctx context.Context, merchantTxnID, state string, signatureValid bool) error {
	detailsJSON, _ := json.Marshal(AuditDetails{SignatureValid: &signatureValid})
	return s.LogEvent(ctx, AuditEvent{
		EventType:             EventCallbackReceived,
		MerchantTransactionID: merchantTxnID,
		State:                 state,
		Details:               detailsJSON,
	})
}

// LogVelocityBlocked logs a request rejected by a velocity limit.
func (s *AuditService) LogVelocityBlocked(ctx context.Context, userID, checkType string, count, max int) error {
	detailsJSON, _ := json.Marshal(AuditDetails{CheckType: checkType, CurrentCount: count, MaxAllowed: max})
	return s.LogEvent(ctx, AuditEvent{
		EventType: EventVelocityBlocked,
		UserID:    userID,
		Details:   detailsJSON,
	})
}

// QueryEvents retrieves audit events with filters.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, user_id, merchant_transaction_id,
			   amount_paise, state, details, created_at
		FROM payment_audit_events
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.MerchantTransactionID != "" {
		query += fmt.Sprintf(" AND merchant_transaction_id = $%d", argIdx)
		args = append(args, filter.MerchantTransactionID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var userID, txnID, state sql.NullString
		var amount sql.NullInt64
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventType, &userID, &txnID, &amount, &state, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.UserID = userID.String
		e.MerchantTransactionID = txnID.String
		e.AmountPaise = amount.Int64
		e.State = state.String
		e.Details = details
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to iterate audit events: %w", err)
	}

	return events, nil
}

// TransactionOwner returns the user who initiated merchantTxnID, or "" when the
// transaction has no initiation record.
func (s *AuditService) TransactionOwner(ctx context.Context, merchantTxnID string) (string, error) {
	if s == nil || s.db == nil || merchantTxnID == "" {
		return "", nil
	}
	query := `
		SELECT user_id
		FROM payment_audit_events
		WHERE merchant_transaction_id = $1 AND event_type = $2
		ORDER BY created_at ASC
		LIMIT 1
	`
	var owner sql.NullString
	err := s.db.QueryRowContext(ctx, query, merchantTxnID, string(EventPaymentInitiated)).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("compliance: failed to look up transaction owner: %w", err)
	}
	return owner.String, nil
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	UserID                string
	MerchantTransactionID string
	EventType             AuditEventType
	StartTime             time.Time
	EndTime               time.Time
	Limit                 int
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
