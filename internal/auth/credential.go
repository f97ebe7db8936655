// Package auth resolves who is calling the BFF.
//
// Resolution never verifies token signatures. Every backend re-verifies the bearer
// token it receives; the identity decoded here is display metadata only and must not
// drive authorization decisions.
package auth

import "context"

// Source names where a credential was found.
type Source string

const (
	SourceHeader Source = "header"
	SourceCookie Source = "cookie"
	SourceIDP    Source = "idp"
)

// Credential is the bearer token resolved for a single inbound request.
type Credential struct {
	Token  string
	Source Source
}

// CallerIdentity is best-effort identity metadata. ID is never empty.
type CallerIdentity struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// Result is the outcome of resolving a request. Both fields are nil when the caller
// is not authenticated; Identity may be nil even when Credential is set.
type Result struct {
	Credential *Credential
	Identity   *CallerIdentity
}

// Authenticated reports whether a token was resolved.
func (r Result) Authenticated() bool {
	return r.Credential != nil && r.Credential.Token != ""
}

// Token returns the resolved token or "".
func (r Result) Token() string {
	if r.Credential == nil {
		return ""
	}
	return r.Credential.Token
}

// UserID returns the identity id or "".
func (r Result) UserID() string {
	if r.Identity == nil {
		return ""
	}
	return r.Identity.ID
}

type resultContextKey struct{}

// NewContext returns a copy of ctx carrying res.
func NewContext(ctx context.Context, res Result) context.Context {
	return context.WithValue(ctx, resultContextKey{}, res)
}

// FromContext returns the Result stored by NewContext, or an empty Result.
func FromContext(ctx context.Context) Result {
	res, _ := ctx.Value(resultContextKey{}).(Result)
	return res
}
