// Package gateway forwards authenticated BFF requests to backend services and maps
// their responses into client payloads or apierr.Error values.
package gateway

import (
	"net/http"

	"github.com/wolfman30/telehealth-bff/internal/auth"
)

// Backend names a backend family with its own base URL.
type Backend string

const (
	BackendAPI    Backend = "api"
	BackendSocial Backend = "social"
	BackendVideo  Backend = "video"
)

// Convention is the header convention a backend expects.
type Convention int

const (
	// ConventionBearer sends the bearer token and an X-Auth-ID identity hint.
	ConventionBearer Convention = iota
	// ConventionUserID sends the bearer token and an X-User-ID identity hint.
	ConventionUserID
	// ConventionForward forwards the inbound Authorization header unchanged.
	ConventionForward
)

// Convention returns the header convention of b.
func (b Backend) Convention() Convention {
	switch b {
	case BackendSocial:
		return ConventionUserID
	case BackendVideo:
		return ConventionForward
	default:
		return ConventionBearer
	}
}

// BuildHeaders returns the outbound headers for a call to backend on behalf of res.
// Identity hint headers are informational; backends derive trust from the token.
func BuildHeaders(backend Backend, res auth.Result, inbound http.Header) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")

	token := res.Token()
	setBearer := func() {
		if token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
	}

	switch backend.Convention() {
	case ConventionBearer:
		setBearer()
		if id := res.UserID(); id != "" {
			h.Set("X-Auth-ID", id)
		}
	case ConventionUserID:
		setBearer()
		if id := res.UserID(); id != "" {
			h.Set("X-User-ID", id)
		}
	case ConventionForward:
		if authz := inbound.Get("Authorization"); authz != "" {
			h.Set("Authorization", authz)
		} else {
			setBearer()
		}
	}
	return h
}
