package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wolfman30/telehealth-bff/internal/apierr"
)

// Endpoint is a static description of one backend route as the BFF exposes it.
type Endpoint struct {
	Name    string
	Backend Backend
	Method  string
	// Path may contain {param} placeholders; see Expand.
	Path string
	// EmptyOn404 builds the empty payload returned with 200 when the backend
	// answers 404. Nil means the 404 is surfaced to the client.
	EmptyOn404 func() any
	// Shape transforms a decoded 2xx body. Nil passes the body through.
	Shape func(any) any
}

// Expand substitutes {param} placeholders in the endpoint path with path-escaped values.
// Empty values and dot segments are rejected so a parameter stays inside its route.
func (e Endpoint) Expand(params map[string]string) (string, *apierr.Error) {
	p := e.Path
	for k, v := range params {
		placeholder := "{" + k + "}"
		if !strings.Contains(p, placeholder) {
			continue
		}
		if !validSegment(v) {
			return "", apierr.BadRequest("Invalid path parameter")
		}
		p = strings.ReplaceAll(p, placeholder, url.PathEscape(v))
	}
	return p, nil
}

func validSegment(v string) bool {
	if unescaped, err := url.PathUnescape(v); err == nil {
		v = unescaped
	}
	switch strings.TrimSpace(v) {
	case "", ".", "..":
		return false
	}
	return true
}

// hasDotSegment reports whether an already expanded path would be rewritten by
// path cleaning.
func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// Payload is a normalized successful response.
type Payload struct {
	Status int
	Body   any
}

// Normalize maps a backend response onto a client payload or a normalized error.
func Normalize(ep Endpoint, resp *Response) (*Payload, *apierr.Error) {
	if resp == nil {
		return nil, apierr.Transport(fmt.Errorf("gateway: %s: no response", ep.Name))
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := decodeBody(resp.Body)
		if err != nil {
			return nil, apierr.Transport(fmt.Errorf("gateway: decode %s response: %w", ep.Name, err))
		}
		if ep.Shape != nil {
			body = ep.Shape(body)
		}
		status := resp.StatusCode
		if status == http.StatusNoContent {
			status = http.StatusOK
		}
		return &Payload{Status: status, Body: body}, nil
	case resp.StatusCode == http.StatusNotFound && ep.EmptyOn404 != nil:
		return &Payload{Status: http.StatusOK, Body: ep.EmptyOn404()}, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, apierr.NotFound(errorMessage(resp.Body))
	default:
		return nil, apierr.Upstream(resp.StatusCode, errorMessage(resp.Body))
	}
}

func decodeBody(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

// errorMessage extracts the backend's error or message field. Anything else in the
// body stays server-side.
func errorMessage(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, key := range []string{"error", "message"} {
		switch v := body[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]any:
			if s, ok := v["message"].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
