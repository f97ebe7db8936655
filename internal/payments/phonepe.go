// Package payments integrates the PhonePe payment gateway and guards it with
// Redis-backed velocity limits.
package payments

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

var phonepeTracer = otel.Tracer("telehealth.internal.payments.phonepe")

const (
	PhonePeProductionURL = "https://api.phonepe.com/apis/hermes"
	PhonePeSandboxURL    = "https://api-preprod.phonepe.com/apis/pg-sandbox"

	payPath    = "/pg/v1/pay"
	refundPath = "/pg/v1/refund"
)

var (
	// ErrNotConfigured is returned when merchant credentials are missing.
	ErrNotConfigured = errors.New("payments: phonepe not configured")
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("payments: amount must be greater than zero")
	// ErrInvalidSignature is returned when a callback checksum does not match.
	ErrInvalidSignature = errors.New("payments: invalid callback signature")
)

// ProviderError is a non-success answer from PhonePe.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payments: phonepe status %d code %s: %s", e.StatusCode, e.Code, e.Message)
}

// PhonePeConfig holds merchant credentials and host selection.
type PhonePeConfig struct {
	MerchantID  string
	SaltKey     string
	SaltIndex   string
	Env         string
	BaseURL     string
	RedirectURL string
	CallbackURL string
}

// PhonePeClient calls the PhonePe PG v1 API.
type PhonePeClient struct {
	cfg        PhonePeConfig
	httpClient *http.Client
	logger     *logging.Logger
	newTxnID   func() string
}

// PayRequest starts a pay-page transaction.
type PayRequest struct {
	MerchantTransactionID string
	MerchantUserID        string
	AmountPaise           int64
	MobileNumber          string
	RedirectURL           string
	CallbackURL           string
}

// PayResponse carries where to send the user to complete payment.
type PayResponse struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	RedirectURL           string `json:"redirectUrl"`
	Code                  string `json:"code"`
}

// TransactionStatus is the data block of status responses and callbacks.
type TransactionStatus struct {
	Code                  string `json:"code"`
	Success               bool   `json:"success"`
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	AmountPaise           int64  `json:"amount"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode"`
}

// RefundRequest refunds all or part of a completed transaction.
type RefundRequest struct {
	MerchantTransactionID string
	OriginalTransactionID string
	MerchantUserID        string
	AmountPaise           int64
	CallbackURL           string
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewPhonePeClient creates a client with a 30 second HTTP timeout.
func NewPhonePeClient(cfg PhonePeConfig, logger *logging.Logger) *PhonePeClient {
	if logger == nil {
		logger = logging.Default()
	}
	cfg.Env = strings.ToUpper(strings.TrimSpace(cfg.Env))
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.SaltIndex == "" {
		cfg.SaltIndex = "1"
	}
	return &PhonePeClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		newTxnID:   func() string { return "MT" + strings.ReplaceAll(uuid.NewString(), "-", "")[:30] },
	}
}

// WithHTTPClient overrides the HTTP client.
func (c *PhonePeClient) WithHTTPClient(client *http.Client) *PhonePeClient {
	if client != nil {
		c.httpClient = client
	}
	return c
}

// Configured reports whether merchant credentials are present.
func (c *PhonePeClient) Configured() bool {
	return c != nil && c.cfg.MerchantID != "" && c.cfg.SaltKey != ""
}

// Checksum computes the X-VERIFY value for a base64 payload posted to apiPath.
func Checksum(payloadB64, apiPath, saltKey, saltIndex string) string {
	sum := sha256.Sum256([]byte(payloadB64 + apiPath + saltKey))
	return hex.EncodeToString(sum[:]) + "###" + saltIndex
}

// payHost selects the host for pay and refund calls. Only PRODUCTION leaves the sandbox.
func (c *PhonePeClient) payHost() string {
	if c.cfg.BaseURL != "" {
		return c.cfg.BaseURL
	}
	if c.cfg.Env == "PRODUCTION" {
		return PhonePeProductionURL
	}
	return PhonePeSandboxURL
}

// statusHost selects the host for status calls. Only SANDBOX stays off production.
func (c *PhonePeClient) statusHost() string {
	if c.cfg.BaseURL != "" {
		return c.cfg.BaseURL
	}
	if c.cfg.Env == "SANDBOX" {
		return PhonePeSandboxURL
	}
	return PhonePeProductionURL
}

// Initiate starts a pay-page payment and returns the redirect URL.
func (c *PhonePeClient) Initiate(ctx context.Context, req PayRequest) (*PayResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if req.AmountPaise <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.MerchantTransactionID == "" {
		req.MerchantTransactionID = c.newTxnID()
	}

	ctx, span := phonepeTracer.Start(ctx, "phonepe.pay")
	defer span.End()
	span.SetAttributes(
		attribute.String("phonepe.merchant_transaction_id", req.MerchantTransactionID),
		attribute.Int64("phonepe.amount_paise", req.AmountPaise),
	)

	redirectURL := firstNonEmpty(req.RedirectURL, c.cfg.RedirectURL)
	payload := map[string]any{
		"merchantId":            c.cfg.MerchantID,
		"merchantTransactionId": req.MerchantTransactionID,
		"merchantUserId":        firstNonEmpty(req.MerchantUserID, "guest"),
		"amount":                req.AmountPaise,
		"redirectUrl":           redirectURL,
		"redirectMode":          "REDIRECT",
		"callbackUrl":           firstNonEmpty(req.CallbackURL, c.cfg.CallbackURL),
		"paymentInstrument":     map[string]string{"type": "PAY_PAGE"},
	}
	if req.MobileNumber != "" {
		payload["mobileNumber"] = req.MobileNumber
	}

	env, err := c.postSigned(ctx, c.payHost(), payPath, payload)
	if err != nil {
		return nil, err
	}

	var data struct {
		InstrumentResponse struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("payments: phonepe pay decode: %w", err)
		}
	}
	if data.InstrumentResponse.RedirectInfo.URL == "" {
		return nil, fmt.Errorf("payments: phonepe response missing redirect url")
	}

	c.logger.Info("phonepe payment initiated",
		"merchant_transaction_id", req.MerchantTransactionID,
		"amount_paise", req.AmountPaise,
	)
	return &PayResponse{
		MerchantTransactionID: req.MerchantTransactionID,
		RedirectURL:           data.InstrumentResponse.RedirectInfo.URL,
		Code:                  env.Code,
	}, nil
}

// Status fetches the state of a transaction.
func (c *PhonePeClient) Status(ctx context.Context, merchantTxnID string) (*TransactionStatus, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	merchantTxnID = strings.TrimSpace(merchantTxnID)
	if merchantTxnID == "" {
		return nil, fmt.Errorf("payments: merchant transaction id required")
	}

	ctx, span := phonepeTracer.Start(ctx, "phonepe.status")
	defer span.End()
	span.SetAttributes(attribute.String("phonepe.merchant_transaction_id", merchantTxnID))

	apiPath := fmt.Sprintf("/pg/v1/status/%s/%s", c.cfg.MerchantID, merchantTxnID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusHost()+apiPath, nil)
	if err != nil {
		return nil, fmt.Errorf("payments: phonepe status request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", Checksum("", apiPath, c.cfg.SaltKey, c.cfg.SaltIndex))
	httpReq.Header.Set("X-MERCHANT-ID", c.cfg.MerchantID)

	env, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	status, err := decodeStatus(env)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("phonepe.state", status.State))
	return status, nil
}

// Refund submits a refund against a completed transaction.
func (c *PhonePeClient) Refund(ctx context.Context, req RefundRequest) (*TransactionStatus, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if req.AmountPaise <= 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(req.OriginalTransactionID) == "" {
		return nil, fmt.Errorf("payments: original transaction id required")
	}
	if req.MerchantTransactionID == "" {
		req.MerchantTransactionID = c.newTxnID()
	}

	ctx, span := phonepeTracer.Start(ctx, "phonepe.refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("phonepe.original_transaction_id", req.OriginalTransactionID),
		attribute.Int64("phonepe.amount_paise", req.AmountPaise),
	)

	payload := map[string]any{
		"merchantId":            c.cfg.MerchantID,
		"merchantUserId":        firstNonEmpty(req.MerchantUserID, "guest"),
		"originalTransactionId": req.OriginalTransactionID,
		"merchantTransactionId": req.MerchantTransactionID,
		"amount":                req.AmountPaise,
		"callbackUrl":           firstNonEmpty(req.CallbackURL, c.cfg.CallbackURL),
	}
	env, err := c.postSigned(ctx, c.payHost(), refundPath, payload)
	if err != nil {
		return nil, err
	}
	status, err := decodeStatus(env)
	if err != nil {
		return nil, err
	}
	if status.MerchantTransactionID == "" {
		status.MerchantTransactionID = req.MerchantTransactionID
	}
	c.logger.Info("phonepe refund requested",
		"merchant_transaction_id", req.MerchantTransactionID,
		"original_transaction_id", req.OriginalTransactionID,
		"amount_paise", req.AmountPaise,
	)
	return status, nil
}

// VerifyCallback checks the X-VERIFY header of a server callback and decodes its
// base64 response payload.
func (c *PhonePeClient) VerifyCallback(responseB64, xVerify string) (*TransactionStatus, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	expected := Checksum(responseB64, "", c.cfg.SaltKey, c.cfg.SaltIndex)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(xVerify))) != 1 {
		return nil, ErrInvalidSignature
	}
	raw, err := base64.StdEncoding.DecodeString(responseB64)
	if err != nil {
		return nil, fmt.Errorf("payments: phonepe callback decode: %w", err)
	}
	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("payments: phonepe callback decode: %w", err)
	}
	status := &TransactionStatus{}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, status); err != nil {
			return nil, fmt.Errorf("payments: phonepe callback decode: %w", err)
		}
	}
	status.Code = env.Code
	status.Success = env.Success
	return status, nil
}

func (c *PhonePeClient) postSigned(ctx context.Context, host, apiPath string, payload any) (*apiEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("payments: phonepe payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return nil, fmt.Errorf("payments: phonepe payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, host+apiPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payments: phonepe request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", Checksum(encoded, apiPath, c.cfg.SaltKey, c.cfg.SaltIndex))
	return c.do(httpReq)
}

func (c *PhonePeClient) do(req *http.Request) (*apiEnvelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: phonepe http: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("payments: phonepe read: %w", err)
	}

	var env apiEnvelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode >= http.StatusMultipleChoices || (decodeErr == nil && !env.Success) {
		c.logger.Warn("phonepe request failed",
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"code", env.Code,
		)
		return nil, &ProviderError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("payments: phonepe decode: %w", decodeErr)
	}
	return &env, nil
}

func decodeStatus(env *apiEnvelope) (*TransactionStatus, error) {
	status := &TransactionStatus{}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, status); err != nil {
			return nil, fmt.Errorf("payments: phonepe status decode: %w", err)
		}
	}
	status.Code = env.Code
	status.Success = env.Success
	return status, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
