package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/telehealth-bff/internal/compliance"
	"github.com/wolfman30/telehealth-bff/internal/payments"
	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

type stubAuditQuerier struct {
	filter compliance.AuditFilter
	events []compliance.AuditEvent
	err    error
}

func (s *stubAuditQuerier) QueryEvents(_ context.Context, filter compliance.AuditFilter) ([]compliance.AuditEvent, error) {
	s.filter = filter
	return s.events, s.err
}

func adminRouter(h *AdminPaymentsHandler) http.Handler {
	r := chi.NewRouter()
	r.Mount("/admin/payments", h.Routes())
	return r
}

func TestAdminVelocity_ResetClearsCounter(t *testing.T) {
	cfg := payments.DefaultVelocityConfig()
	cfg.MaxInitiationsPerUser = 1
	velocity := newVelocity(t, cfg)
	ctx := context.Background()
	_, _ = velocity.CheckInitiationVelocity(ctx, "user-1")
	_, _ = velocity.CheckInitiationVelocity(ctx, "user-1")

	router := adminRouter(NewAdminPaymentsHandler(velocity, nil, logging.New("error")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/payments/velocity/user-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["allowed"])
	assert.EqualValues(t, 2, body["current_count"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/payments/velocity/user-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	result, err := velocity.CheckInitiationVelocity(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestAdminAudit_ListsEvents(t *testing.T) {
	querier := &stubAuditQuerier{events: []compliance.AuditEvent{{ID: "evt-1", EventType: compliance.EventPaymentInitiated}}}
	router := adminRouter(NewAdminPaymentsHandler(payments.NewVelocityChecker(nil, payments.DefaultVelocityConfig(), nil), querier, logging.New("error")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/payments/audit?txn_id=MT-1&limit=9999", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MT-1", querier.filter.MerchantTransactionID)
	assert.Equal(t, 100, querier.filter.Limit)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])
}

func TestAdminAudit_QueryFailure(t *testing.T) {
	querier := &stubAuditQuerier{err: errors.New("db down")}
	router := adminRouter(NewAdminPaymentsHandler(payments.NewVelocityChecker(nil, payments.DefaultVelocityConfig(), nil), querier, logging.New("error")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/payments/audit", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func refundRouter(t *testing.T, phonepe *stubPhonePe, audit PaymentAuditor) http.Handler {
	t.Helper()
	velocity := newVelocity(t, payments.DefaultVelocityConfig())
	refunds := NewPaymentsHandler(phonepe, nil, velocity, audit, logging.New("error"))
	return adminRouter(NewAdminPaymentsHandler(velocity, nil, logging.New("error")).WithRefunds(refunds))
}

func postRefund(router http.Handler, body string) int {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/payments/phonepe/refund", strings.NewReader(body)))
	return rec.Code
}

func TestAdminRefund_OncePerTransaction(t *testing.T) {
	phonepe := &stubPhonePe{}
	audit := &auditRecorder{owners: map[string]string{"MT-1": "user-1"}}
	router := refundRouter(t, phonepe, audit)

	assert.Equal(t, http.StatusOK, postRefund(router, `{"originalTransactionId":"MT-1","amount":100}`))
	assert.Equal(t, http.StatusTooManyRequests, postRefund(router, `{"originalTransactionId":"MT-1","amount":100}`))
	require.Len(t, phonepe.refunds, 1)
	assert.Equal(t, int64(10000), phonepe.refunds[0].AmountPaise)
	assert.Equal(t, "user-1", phonepe.refunds[0].MerchantUserID)
	assert.Contains(t, audit.events, "refund")
}

func TestAdminRefund_RequiresOriginalTransaction(t *testing.T) {
	phonepe := &stubPhonePe{}
	router := refundRouter(t, phonepe, &auditRecorder{})

	assert.Equal(t, http.StatusBadRequest, postRefund(router, `{"amount":100}`))
	assert.Empty(t, phonepe.refunds)
}

func TestAdminRefund_UnknownOrMismatchedOwnerNotFound(t *testing.T) {
	phonepe := &stubPhonePe{}
	audit := &auditRecorder{owners: map[string]string{"MT-1": "user-1"}}
	router := refundRouter(t, phonepe, audit)

	assert.Equal(t, http.StatusNotFound, postRefund(router, `{"originalTransactionId":"MT-9","amount":100}`))
	assert.Equal(t, http.StatusNotFound, postRefund(router, `{"originalTransactionId":"MT-1","merchantUserId":"user-2","amount":100}`))
	assert.Empty(t, phonepe.refunds)
}

func TestAdminRefund_WithoutAuditNeedsMerchantUser(t *testing.T) {
	phonepe := &stubPhonePe{}
	router := refundRouter(t, phonepe, nil)

	assert.Equal(t, http.StatusBadRequest, postRefund(router, `{"originalTransactionId":"MT-1","amount":100}`))
	assert.Equal(t, http.StatusOK, postRefund(router, `{"originalTransactionId":"MT-1","merchantUserId":"user-1","amount":100}`))
	require.Len(t, phonepe.refunds, 1)
	assert.Equal(t, "user-1", phonepe.refunds[0].MerchantUserID)
}

func TestAdminRefund_NotRoutedWithoutPayments(t *testing.T) {
	router := adminRouter(NewAdminPaymentsHandler(newVelocity(t, payments.DefaultVelocityConfig()), nil, logging.New("error")))
	assert.Equal(t, http.StatusNotFound, postRefund(router, `{"originalTransactionId":"MT-1","amount":100}`))
}
