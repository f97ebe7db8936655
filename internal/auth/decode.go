package auth

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeIdentity reads identity claims from the payload segment of a JWT-shaped token
// without checking its signature. It returns nil on any decoding failure.
func DecodeIdentity(token string) *CallerIdentity {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}
	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var claims map[string]any
	if err := dec.Decode(&claims); err != nil {
		return nil
	}
	return IdentityFromClaims(claims)
}

// IdentityFromClaims reads a caller identity from a claim or profile map. It returns nil
// when no user id is present.
func IdentityFromClaims(claims map[string]any) *CallerIdentity {
	id := firstString(claims, "sub", "user_id", "id")
	if id == "" {
		return nil
	}
	return &CallerIdentity{
		ID:        id,
		Email:     firstString(claims, "email"),
		FirstName: firstString(claims, "first_name", "firstName"),
		LastName:  firstString(claims, "last_name", "lastName"),
	}
}

// firstString returns the first non-empty string or number under keys.
func firstString(claims map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}
