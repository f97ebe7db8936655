package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/telehealth-bff/internal/apierr"
	httpmiddleware "github.com/wolfman30/telehealth-bff/internal/http/middleware"
	"github.com/wolfman30/telehealth-bff/internal/payments"
	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

// PaymentGateway is the PhonePe surface used by the payment routes.
type PaymentGateway interface {
	Initiate(ctx context.Context, req payments.PayRequest) (*payments.PayResponse, error)
	Status(ctx context.Context, merchantTxnID string) (*payments.TransactionStatus, error)
	Refund(ctx context.Context, req payments.RefundRequest) (*payments.TransactionStatus, error)
	VerifyCallback(responseB64, xVerify string) (*payments.TransactionStatus, error)
}

// VelocityGuard limits how often payments and refunds may be attempted.
type VelocityGuard interface {
	CheckInitiationVelocity(ctx context.Context, userID string) (*payments.VelocityResult, error)
	CheckRefundVelocity(ctx context.Context, originalTxnID string) (*payments.VelocityResult, error)
}

// PaymentAuditor records payment events.
type PaymentAuditor interface {
	LogPaymentInitiated(ctx context.Context, userID, merchantTxnID string, amountPaise int64) error
	LogStatusChecked(ctx context.Context, userID, merchantTxnID, state, providerCode string) error
	LogRefundRequested(ctx context.Context, userID, refundTxnID, originalTxnID string, amountPaise int64) error
	LogCallbackReceived(ctx context.Context, merchantTxnID, state string, signatureValid bool) error
	LogVelocityBlocked(ctx context.Context, userID, checkType string, count, max int) error
	// TransactionOwner returns the user who initiated merchantTxnID, or "" when unknown.
	TransactionOwner(ctx context.Context, merchantTxnID string) (string, error)
}

// PaymentsHandler serves the PhonePe payment routes.
type PaymentsHandler struct {
	phonepe  PaymentGateway
	verifier CallerVerifier
	velocity VelocityGuard
	audit    PaymentAuditor
	logger   *logging.Logger
}

// NewPaymentsHandler creates a payments handler. velocity and audit may be nil. A nil
// verifier rejects every caller route.
func NewPaymentsHandler(phonepe PaymentGateway, verifier CallerVerifier, velocity VelocityGuard, audit PaymentAuditor, logger *logging.Logger) *PaymentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PaymentsHandler{phonepe: phonepe, verifier: verifier, velocity: velocity, audit: audit, logger: logger}
}

// Routes returns the PhonePe routes, mounted under /api/payments/phonepe. The
// callback is public and authenticated by its checksum instead. Caller routes run
// only after the backend has confirmed the credential. Refunds are served from the
// admin routes.
func (h *PaymentsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/callback", h.Callback)
	r.Group(func(authed chi.Router) {
		authed.Use(httpmiddleware.RequireAuth)
		authed.Use(RequireVerifiedCaller(h.verifier))
		authed.Post("/initiate", h.Initiate)
		authed.Get("/status/{txnId}", h.Status)
	})
	return r
}

type initiateRequest struct {
	Amount                float64 `json:"amount"`
	AmountPaise           int64   `json:"amount_paise"`
	MerchantTransactionID string  `json:"merchantTransactionId"`
	MobileNumber          string  `json:"mobileNumber"`
	RedirectURL           string  `json:"redirectUrl"`
	AppointmentID         string  `json:"appointmentId"`
}

// paise converts the request amount, preferring an explicit paise value over rupees.
func (r initiateRequest) paise() int64 {
	if r.AmountPaise > 0 {
		return r.AmountPaise
	}
	return int64(math.Round(r.Amount * 100))
}

// Initiate starts a PhonePe pay-page transaction for the verified caller.
func (h *PaymentsHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := verifiedCaller(ctx)
	if caller == nil {
		apierr.Write(w, apierr.Unauthorized())
		return
	}
	userID := caller.ID

	var req initiateRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		apierr.Write(w, apiErr)
		return
	}
	amount := req.paise()
	if amount <= 0 {
		apierr.Write(w, apierr.BadRequest("Amount must be greater than zero"))
		return
	}

	if apiErr := h.checkVelocity(ctx, userID, payments.CheckInitiation, func() (*payments.VelocityResult, error) {
		return h.velocity.CheckInitiationVelocity(ctx, userID)
	}); apiErr != nil {
		apierr.Write(w, apiErr)
		return
	}

	resp, err := h.phonepe.Initiate(ctx, payments.PayRequest{
		MerchantTransactionID: req.MerchantTransactionID,
		MerchantUserID:        userID,
		AmountPaise:           amount,
		MobileNumber:          req.MobileNumber,
		RedirectURL:           req.RedirectURL,
	})
	if err != nil {
		apierr.Write(w, h.paymentError("phonepe initiate failed", err))
		return
	}

	h.record(func() error { return h.audit.LogPaymentInitiated(ctx, userID, resp.MerchantTransactionID, amount) })
	writeJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"merchantTransactionId": resp.MerchantTransactionID,
		"redirectUrl":           resp.RedirectURL,
		"code":                  resp.Code,
	})
}

// Status reports the state of a transaction the verified caller initiated. When the
// audit trail is configured, transactions owned by someone else read as not found.
func (h *PaymentsHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := verifiedCaller(ctx)
	if caller == nil {
		apierr.Write(w, apierr.Unauthorized())
		return
	}
	txnID := strings.TrimSpace(chi.URLParam(r, "txnId"))
	if txnID == "" {
		apierr.Write(w, apierr.BadRequest("Transaction id is required"))
		return
	}
	if h.audit != nil {
		owner, apiErr := h.transactionOwner(ctx, txnID)
		if apiErr != nil {
			apierr.Write(w, apiErr)
			return
		}
		if owner != caller.ID {
			h.logger.Warn("payment status denied", "merchant_transaction_id", txnID, "user_id", caller.ID)
			apierr.Write(w, apierr.NotFound("Transaction not found"))
			return
		}
	}

	status, err := h.phonepe.Status(ctx, txnID)
	if err != nil {
		apierr.Write(w, h.paymentError("phonepe status failed", err))
		return
	}

	h.record(func() error { return h.audit.LogStatusChecked(ctx, caller.ID, txnID, status.State, status.Code) })
	writeJSON(w, http.StatusOK, status)
}

type refundRequest struct {
	OriginalTransactionID string  `json:"originalTransactionId"`
	MerchantTransactionID string  `json:"merchantTransactionId"`
	MerchantUserID        string  `json:"merchantUserId"`
	Amount                float64 `json:"amount"`
	AmountPaise           int64   `json:"amount_paise"`
}

// Refund submits a refund for a completed transaction. It is an operator action
// served behind the admin JWT; the refund is issued for the user who initiated the
// original transaction.
func (h *PaymentsHandler) Refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operator := ""
	if claims, ok := httpmiddleware.AdminClaimsFromContext(ctx); ok {
		operator = claims.Subject
	}

	var req refundRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		apierr.Write(w, apiErr)
		return
	}
	original := strings.TrimSpace(req.OriginalTransactionID)
	if original == "" {
		apierr.Write(w, apierr.BadRequest("Original transaction id is required"))
		return
	}
	amount := req.AmountPaise
	if amount <= 0 {
		amount = int64(math.Round(req.Amount * 100))
	}
	if amount <= 0 {
		apierr.Write(w, apierr.BadRequest("Amount must be greater than zero"))
		return
	}

	userID := strings.TrimSpace(req.MerchantUserID)
	if h.audit != nil {
		owner, apiErr := h.transactionOwner(ctx, original)
		if apiErr != nil {
			apierr.Write(w, apiErr)
			return
		}
		if owner == "" || (userID != "" && userID != owner) {
			apierr.Write(w, apierr.NotFound("Transaction not found"))
			return
		}
		userID = owner
	}
	if userID == "" {
		apierr.Write(w, apierr.BadRequest("Merchant user id is required"))
		return
	}

	if apiErr := h.checkVelocity(ctx, userID, payments.CheckRefund, func() (*payments.VelocityResult, error) {
		return h.velocity.CheckRefundVelocity(ctx, original)
	}); apiErr != nil {
		apierr.Write(w, apiErr)
		return
	}

	status, err := h.phonepe.Refund(ctx, payments.RefundRequest{
		MerchantTransactionID: req.MerchantTransactionID,
		OriginalTransactionID: original,
		MerchantUserID:        userID,
		AmountPaise:           amount,
	})
	if err != nil {
		apierr.Write(w, h.paymentError("phonepe refund failed", err))
		return
	}

	h.logger.Info("phonepe refund requested",
		"original_transaction_id", original,
		"user_id", userID,
		"operator", operator,
	)
	h.record(func() error {
		return h.audit.LogRefundRequested(ctx, userID, status.MerchantTransactionID, original, amount)
	})
	writeJSON(w, http.StatusOK, status)
}

// Callback verifies and records a PhonePe server-to-server notification.
func (h *PaymentsHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Response string `json:"response"`
	}
	if apiErr := decodeJSONBody(r, &req); apiErr != nil || req.Response == "" {
		apierr.Write(w, apierr.BadRequest("Invalid callback payload"))
		return
	}

	status, err := h.phonepe.VerifyCallback(req.Response, r.Header.Get("X-VERIFY"))
	if errors.Is(err, payments.ErrInvalidSignature) {
		h.logger.Warn("phonepe callback rejected", "reason", "signature mismatch")
		h.record(func() error { return h.audit.LogCallbackReceived(ctx, "", "", false) })
		apierr.Write(w, apierr.BadRequest("Invalid callback signature"))
		return
	}
	if err != nil {
		apierr.Write(w, h.paymentError("phonepe callback failed", err))
		return
	}

	h.logger.Info("phonepe callback received",
		"merchant_transaction_id", status.MerchantTransactionID,
		"state", status.State,
		"code", status.Code,
	)
	h.record(func() error {
		return h.audit.LogCallbackReceived(ctx, status.MerchantTransactionID, status.State, true)
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *PaymentsHandler) checkVelocity(ctx context.Context, userID, check string, run func() (*payments.VelocityResult, error)) *apierr.Error {
	if h.velocity == nil {
		return nil
	}
	result, err := run()
	if err != nil || result == nil || result.Allowed {
		return nil
	}
	h.record(func() error {
		return h.audit.LogVelocityBlocked(ctx, userID, check, result.CurrentCount, result.MaxAllowed)
	})
	return apierr.TooManyRequests("Too many payment attempts. Please try again later.")
}

func (h *PaymentsHandler) transactionOwner(ctx context.Context, merchantTxnID string) (string, *apierr.Error) {
	owner, err := h.audit.TransactionOwner(ctx, merchantTxnID)
	if err != nil {
		h.logger.Error("transaction owner lookup failed", "merchant_transaction_id", merchantTxnID, "error", err)
		return "", apierr.Transport(err)
	}
	return owner, nil
}

// record writes an audit event; failures are logged and never fail the request.
func (h *PaymentsHandler) record(write func() error) {
	if h.audit == nil {
		return
	}
	if err := write(); err != nil {
		h.logger.Error("payment audit write failed", "error", err)
	}
}

func (h *PaymentsHandler) paymentError(msg string, err error) *apierr.Error {
	var perr *payments.ProviderError
	switch {
	case errors.Is(err, payments.ErrInvalidAmount):
		return apierr.BadRequest("Amount must be greater than zero")
	case errors.As(err, &perr):
		h.logger.Warn(msg, "status", perr.StatusCode, "code", perr.Code)
		return apierr.Upstream(perr.StatusCode, perr.Message)
	default:
		h.logger.Error(msg, "error", err)
		return apierr.Transport(err)
	}
}
