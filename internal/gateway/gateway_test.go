package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/telehealth-bff/internal/apierr"
	"github.com/wolfman30/telehealth-bff/internal/auth"
	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

type recordedCall struct {
	backend, endpoint string
	status            int
}

type stubRecorder struct {
	calls []recordedCall
}

func (s *stubRecorder) ObserveUpstream(backend, endpoint string, status int, _ float64) {
	s.calls = append(s.calls, recordedCall{backend: backend, endpoint: endpoint, status: status})
}

func newTestGateway(t *testing.T, backend Backend, baseURL string, opts ...Option) *Gateway {
	t.Helper()
	g, err := New(map[Backend]string{backend: baseURL}, time.Second, logging.New("error"), opts...)
	require.NoError(t, err)
	return g
}

func TestNew_RejectsInvalidBaseURL(t *testing.T) {
	_, err := New(map[Backend]string{BackendAPI: "not a url"}, 0, nil)
	require.Error(t, err)
}

func TestCall_SendsPathQueryAndBody(t *testing.T) {
	var gotPath, gotQuery, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"a1"}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, BackendAPI, srv.URL+"/api/v1")
	req := Request{
		Method: http.MethodPost,
		Path:   "/appointments",
		Query:  map[string][]string{"status": {"upcoming"}},
		Body:   map[string]any{"doctor_id": "d1"},
	}
	resp, apiErr := g.Call(context.Background(), BackendAPI, req, BuildHeaders(BackendAPI, authed("tok", "u1"), http.Header{}))
	require.Nil(t, apiErr)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/api/v1/appointments", gotPath)
	assert.Equal(t, "status=upcoming", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.JSONEq(t, `{"doctor_id":"d1"}`, gotBody)
}

func TestCall_MultipartUsesBoundaryContentType(t *testing.T) {
	var contentType, title, fileBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		title = r.FormValue("title")
		f, _, err := r.FormFile("file")
		if err == nil {
			raw, _ := io.ReadAll(f)
			fileBody = string(raw)
		}
		_, _ = w.Write([]byte(`{"id":"lab-1"}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, BackendAPI, srv.URL)
	req := Request{
		Method: http.MethodPost,
		Path:   "/lab-reports",
		Multipart: &Multipart{
			Fields: map[string]string{"title": "CBC"},
			Files:  []FilePart{{Field: "file", Filename: "cbc.pdf", ContentType: "application/pdf", Content: []byte("%PDF")}},
		},
	}
	_, apiErr := g.Call(context.Background(), BackendAPI, req, BuildHeaders(BackendAPI, authed("tok", ""), http.Header{}))
	require.Nil(t, apiErr)

	assert.True(t, strings.HasPrefix(contentType, "multipart/form-data; boundary="), "content type %q", contentType)
	assert.Equal(t, "CBC", title)
	assert.Equal(t, "%PDF", fileBody)
}

func TestCall_UnreachableBackendIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	rec := &stubRecorder{}
	g := newTestGateway(t, BackendAPI, base, WithRecorder(rec))
	_, apiErr := g.Call(context.Background(), BackendAPI, Request{Name: "doctors.list", Path: "/doctors"}, http.Header{})

	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.HTTPStatus)
	assert.Equal(t, apierr.GenericMessage, apiErr.Message)
	assert.Equal(t, apierr.CodeTransportFailure, apiErr.Code)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, 0, rec.calls[0].status)
	assert.Equal(t, "doctors.list", rec.calls[0].endpoint)
}

func TestCall_TimeoutIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := newTestGateway(t, BackendAPI, srv.URL, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, apiErr := g.Call(context.Background(), BackendAPI, Request{Path: "/slow"}, http.Header{})

	require.NotNil(t, apiErr)
	assert.Equal(t, apierr.CodeTransportFailure, apiErr.Code)
	assert.Equal(t, apierr.GenericMessage, apiErr.Message)
}

func TestCall_UnknownBackend(t *testing.T) {
	g := newTestGateway(t, BackendAPI, "http://127.0.0.1:1")
	_, apiErr := g.Call(context.Background(), BackendSocial, Request{Path: "/feed"}, http.Header{})
	require.NotNil(t, apiErr)
	assert.Equal(t, apierr.CodeTransportFailure, apiErr.Code)
}

func TestDo_EmptyOn404ForSlots(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/doctors/d%2F1/slots", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no schedule"}`))
	}))
	defer srv.Close()

	ep := Endpoint{
		Name:    "doctors.slots",
		Backend: BackendAPI,
		Method:  http.MethodGet,
		Path:    "/doctors/{id}/slots",
		EmptyOn404: func() any {
			return map[string]any{"slots": []any{}, "available_slots": []any{}}
		},
	}
	g := newTestGateway(t, BackendAPI, srv.URL)
	path, apiErr := ep.Expand(map[string]string{"id": "d/1"})
	require.Nil(t, apiErr)
	payload, apiErr := g.Do(context.Background(), ep, authed("tok", "u1"), Request{Path: path}, http.Header{})
	require.Nil(t, apiErr)

	assert.Equal(t, http.StatusOK, payload.Status)
	raw, err := json.Marshal(payload.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"slots":[],"available_slots":[]}`, string(raw))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestDo_SingleDoctor404IsSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Doctor not found"}`))
	}))
	defer srv.Close()

	ep := Endpoint{Name: "doctors.get", Backend: BackendAPI, Method: http.MethodGet, Path: "/doctors/{id}"}
	g := newTestGateway(t, BackendAPI, srv.URL)
	path, apiErr := ep.Expand(map[string]string{"id": "missing"})
	require.Nil(t, apiErr)
	_, apiErr = g.Do(context.Background(), ep, authed("tok", ""), Request{Path: path}, http.Header{})

	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.HTTPStatus)
	assert.Equal(t, "Doctor not found", apiErr.Message)
}

func TestDo_ShapeAppliedToSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1},{"id":2}]`))
	}))
	defer srv.Close()

	ep := Endpoint{
		Name:    "doctors.list",
		Backend: BackendAPI,
		Path:    "/doctors",
		Shape: func(body any) any {
			list, _ := body.([]any)
			return map[string]any{"count": len(list)}
		},
	}
	g := newTestGateway(t, BackendAPI, srv.URL)
	payload, apiErr := g.Do(context.Background(), ep, auth.Result{}, Request{}, http.Header{})
	require.Nil(t, apiErr)
	assert.Equal(t, map[string]any{"count": 2}, payload.Body)
}

func TestDo_TransportErrorUnwraps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	ep := Endpoint{Name: "profile.get", Backend: BackendAPI, Path: "/profile"}
	g := newTestGateway(t, BackendAPI, srv.URL)
	_, apiErr := g.Do(context.Background(), ep, auth.Result{}, Request{}, http.Header{})
	require.NotNil(t, apiErr)
	assert.Equal(t, apierr.GenericMessage, apiErr.Message)

	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(apiErr, &syntaxErr), "expected the decode cause to be kept")
}

func TestCall_RejectsDotSegmentsWithoutCallingBackend(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newTestGateway(t, BackendAPI, srv.URL+"/api")
	_, apiErr := g.Call(context.Background(), BackendAPI, Request{Path: "/doctors/../slots"}, http.Header{})

	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	assert.EqualValues(t, 0, atomic.LoadInt32(&hits))
}
