// Package profiles reshapes backend profile payloads into the client-facing schema.
//
// Every field follows the same precedence: explicit camelCase/display field, then the
// snake_case backend column, then a computed default. Malformed fields degrade to empty
// values instead of failing the response.
package profiles

import (
	"encoding/json"
	"strconv"
	"strings"
)

// DefaultSpecialty is used when a doctor has no specialty information at all.
const DefaultSpecialty = "General"

// Specialization is a doctor's primary and secondary fields of practice.
type Specialization struct {
	Primary   string   `json:"primary"`
	Secondary []string `json:"secondary"`
}

// Doctor is the canonical doctor shape returned to clients.
type Doctor struct {
	ID              string         `json:"id"`
	FirstName       string         `json:"firstName"`
	LastName        string         `json:"lastName"`
	Name            string         `json:"name"`
	Email           string         `json:"email,omitempty"`
	Specialty       string         `json:"specialty"`
	Specialization  Specialization `json:"specialization"`
	Languages       []string       `json:"languages"`
	ConsultationFee float64        `json:"consultationFee"`
	ExperienceYears int            `json:"experienceYears"`
	Rating          float64        `json:"rating"`
	AvatarURL       string         `json:"avatarUrl,omitempty"`
	Hospital        string         `json:"hospital,omitempty"`
}

// DoctorList is the normalized shape of doctor search results.
type DoctorList struct {
	Doctors []Doctor `json:"doctors"`
	Count   int      `json:"count"`
}

// Normalizer holds the computed defaults used during reshaping.
type Normalizer struct {
	DefaultFee float64
}

// NewNormalizer returns a Normalizer using defaultFee for doctors without a fee.
func NewNormalizer(defaultFee float64) *Normalizer {
	return &Normalizer{DefaultFee: defaultFee}
}

// Doctor normalizes a single backend doctor object.
func (n *Normalizer) Doctor(raw map[string]any) Doctor {
	user, _ := raw["user"].(map[string]any)
	field := func(keys ...string) any {
		if v := pick(raw, keys...); v != nil {
			return v
		}
		if user != nil {
			return pick(user, keys...)
		}
		return nil
	}

	first := asString(field("firstName", "first_name"))
	last := asString(field("lastName", "last_name"))
	name := strings.TrimSpace(asString(field("name", "full_name")))
	if first == "" && last == "" && name != "" {
		first, last = splitName(name)
	}
	if name == "" {
		name = strings.TrimSpace(first + " " + last)
	}

	spec := parseSpecialization(raw["specialization"])
	specialty := asString(raw["specialty"])
	if specialty == "" {
		specialty = spec.Primary
	}
	if specialty == "" {
		specialty = DefaultSpecialty
	}

	fee, ok := asFloat(pick(raw, "consultationFee", "consultation_fee"))
	if !ok {
		fee = n.DefaultFee
	}
	experience, _ := asFloat(pick(raw, "experienceYears", "years_of_experience", "experience"))
	rating, _ := asFloat(pick(raw, "rating", "average_rating"))

	return Doctor{
		ID:              asString(pick(raw, "id", "doctor_id", "user_id")),
		FirstName:       first,
		LastName:        last,
		Name:            name,
		Email:           asString(field("email")),
		Specialty:       specialty,
		Specialization:  spec,
		Languages:       parseStringList(pick(raw, "languages", "languages_spoken")),
		ConsultationFee: fee,
		ExperienceYears: int(experience),
		Rating:          rating,
		AvatarURL:       asString(field("avatarUrl", "profile_image", "profile_picture")),
		Hospital:        hospitalName(pick(raw, "hospital", "hospital_name")),
	}
}

// DoctorList normalizes a bare array or an object wrapping the array under
// "doctors", "data" or "results". Non-object entries are skipped.
func (n *Normalizer) DoctorList(body any) DoctorList {
	var items []any
	switch v := body.(type) {
	case []any:
		items = v
	case map[string]any:
		for _, key := range []string{"doctors", "data", "results"} {
			if list, ok := v[key].([]any); ok {
				items = list
				break
			}
		}
	}

	out := DoctorList{Doctors: make([]Doctor, 0, len(items))}
	for _, item := range items {
		if raw, ok := item.(map[string]any); ok {
			out.Doctors = append(out.Doctors, n.Doctor(raw))
		}
	}
	out.Count = len(out.Doctors)
	return out
}

func parseSpecialization(v any) Specialization {
	empty := Specialization{Secondary: []string{}}
	switch val := v.(type) {
	case map[string]any:
		return Specialization{
			Primary:   asString(val["primary"]),
			Secondary: parseStringList(val["secondary"]),
		}
	case []any:
		list := parseStringList(val)
		if len(list) == 0 {
			return empty
		}
		return Specialization{Primary: list[0], Secondary: list[1:]}
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return empty
		}
		if !looksLikeJSON(s) {
			return Specialization{Primary: s, Secondary: []string{}}
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return empty
		}
		switch decoded.(type) {
		case map[string]any, []any:
			return parseSpecialization(decoded)
		}
		return empty
	}
	return empty
}

// parseStringList accepts a JSON array, a JSON-encoded array string, a single string or
// a comma-separated string. It never returns nil.
func parseStringList(v any) []string {
	out := []string{}
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s := strings.TrimSpace(asString(item)); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range val {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return out
		}
		if looksLikeJSON(s) {
			var decoded []any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return out
			}
			return parseStringList(decoded)
		}
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func hospitalName(v any) string {
	if m, ok := v.(map[string]any); ok {
		return asString(m["name"])
	}
	return asString(v)
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// pick returns the first non-nil, non-empty-string value under keys.
func pick(m map[string]any, keys ...string) any {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	}
	return ""
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}
