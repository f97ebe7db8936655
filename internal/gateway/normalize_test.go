package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/telehealth-bff/internal/apierr"
)

func TestNormalize(t *testing.T) {
	emptyOrgs := func() any { return map[string]any{"organizations": []any{}, "count": 0} }

	tests := []struct {
		name       string
		ep         Endpoint
		status     int
		body       string
		wantStatus int
		wantBody   any
		wantErr    *apierr.Error
	}{
		{
			name:       "success passes through",
			status:     http.StatusOK,
			body:       `{"ok":true}`,
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"ok": true},
		},
		{
			name:       "empty success body becomes object",
			status:     http.StatusNoContent,
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{},
		},
		{
			name:       "404 with empty shape",
			ep:         Endpoint{EmptyOn404: emptyOrgs},
			status:     http.StatusNotFound,
			body:       `{"error":"nothing"}`,
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"organizations": []any{}, "count": 0},
		},
		{
			name:    "404 without empty shape",
			status:  http.StatusNotFound,
			wantErr: apierr.NotFound("Not found"),
		},
		{
			name:    "error field extracted",
			status:  http.StatusBadRequest,
			body:    `{"error":"slot taken","trace":"secret"}`,
			wantErr: apierr.Upstream(http.StatusBadRequest, "slot taken"),
		},
		{
			name:    "message field extracted",
			status:  http.StatusConflict,
			body:    `{"message":"already cancelled"}`,
			wantErr: apierr.Upstream(http.StatusConflict, "already cancelled"),
		},
		{
			name:    "nested error message",
			status:  http.StatusUnprocessableEntity,
			body:    `{"error":{"message":"invalid date"}}`,
			wantErr: apierr.Upstream(http.StatusUnprocessableEntity, "invalid date"),
		},
		{
			name:    "non json error body uses generic message",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantErr: apierr.Upstream(http.StatusBadGateway, ""),
		},
		{
			name:    "redirect status maps to 500",
			status:  http.StatusFound,
			wantErr: apierr.Upstream(http.StatusInternalServerError, ""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, apiErr := Normalize(tt.ep, &Response{StatusCode: tt.status, Body: []byte(tt.body)})
			if tt.wantErr != nil {
				require.NotNil(t, apiErr)
				assert.Equal(t, tt.wantErr.HTTPStatus, apiErr.HTTPStatus)
				assert.Equal(t, tt.wantErr.Message, apiErr.Message)
				assert.Equal(t, tt.wantErr.Code, apiErr.Code)
				assert.Nil(t, payload)
				return
			}
			require.Nil(t, apiErr)
			assert.Equal(t, tt.wantStatus, payload.Status)
			assert.Equal(t, tt.wantBody, payload.Body)
		})
	}
}

func TestNormalize_UnparsableSuccessIsTransportFailure(t *testing.T) {
	_, apiErr := Normalize(Endpoint{Name: "feed"}, &Response{StatusCode: http.StatusOK, Body: []byte("{")})
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.HTTPStatus)
	assert.Equal(t, apierr.CodeTransportFailure, apiErr.Code)
}

func TestEndpointExpand(t *testing.T) {
	ep := Endpoint{Path: "/posts/{id}/comments"}
	got, apiErr := ep.Expand(map[string]string{"id": "p 1"})
	require.Nil(t, apiErr)
	assert.Equal(t, "/posts/p%201/comments", got)
}

func TestEndpointExpand_RejectsDotSegments(t *testing.T) {
	ep := Endpoint{Path: "/doctors/{id}"}
	for _, id := range []string{"..", ".", "", "%2e%2e", " "} {
		_, apiErr := ep.Expand(map[string]string{"id": id})
		if apiErr == nil {
			t.Fatalf("Expand(%q) accepted a segment that escapes the route", id)
		}
		if apiErr.HTTPStatus != http.StatusBadRequest {
			t.Fatalf("Expand(%q) status = %d, want 400", id, apiErr.HTTPStatus)
		}
	}
}

func TestEndpointExpand_IgnoresUnusedParams(t *testing.T) {
	ep := Endpoint{Path: "/doctors"}
	got, apiErr := ep.Expand(map[string]string{"other": ".."})
	require.Nil(t, apiErr)
	assert.Equal(t, "/doctors", got)
}
