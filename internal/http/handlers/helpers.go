package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/telehealth-bff/internal/apierr"
	"github.com/wolfman30/telehealth-bff/internal/gateway"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writePayload(w http.ResponseWriter, p *gateway.Payload) {
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, p.Status, p.Body)
}

// readJSONBody returns the request body when it holds valid JSON. An empty body
// yields nil without error.
func readJSONBody(r *http.Request) (json.RawMessage, *apierr.Error) {
	if r.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody+1))
	if err != nil {
		return nil, apierr.BadRequest("Unable to read request body")
	}
	if len(raw) > maxJSONBody {
		return nil, apierr.BadRequest("Request body too large")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, apierr.BadRequest("Invalid JSON body")
	}
	return raw, nil
}

// decodeJSONBody decodes the request body into dst, rejecting empty and malformed bodies.
func decodeJSONBody(r *http.Request, dst any) *apierr.Error {
	raw, apiErr := readJSONBody(r)
	if apiErr != nil {
		return apiErr
	}
	if raw == nil {
		return apierr.BadRequest("Request body required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return apierr.BadRequest("Invalid JSON body")
	}
	return nil
}

func routeParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if key == "*" || i >= len(rctx.URLParams.Values) {
			continue
		}
		params[key] = rctx.URLParams.Values[i]
	}
	return params
}

func emptyList(key string) func() any {
	return func() any { return map[string]any{key: []any{}} }
}
