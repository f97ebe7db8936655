package profiles

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) map[string]any {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return raw
}

func TestDoctor_NameAndJSONEncodedSpecialization(t *testing.T) {
	n := NewNormalizer(500)
	got := n.Doctor(decode(t, `{"name":"Jane Doe","specialization":"{\"primary\":\"Cardiology\"}"}`))

	assert.Equal(t, "Jane", got.FirstName)
	assert.Equal(t, "Doe", got.LastName)
	assert.Equal(t, "Jane Doe", got.Name)
	assert.Equal(t, "Cardiology", got.Specialty)
	assert.Equal(t, "Cardiology", got.Specialization.Primary)
	assert.Equal(t, []string{}, got.Specialization.Secondary)
}

func TestDoctor_UnparsableSpecialization(t *testing.T) {
	n := NewNormalizer(500)
	got := n.Doctor(decode(t, `{"id":7,"specialization":"{primary: Cardiology"}`))

	require.NotNil(t, got.Specialization.Secondary)
	assert.Empty(t, got.Specialization.Secondary)
	assert.Equal(t, "", got.Specialization.Primary)
	assert.Equal(t, DefaultSpecialty, got.Specialty)
	assert.Equal(t, "7", got.ID)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"secondary":[]`)
}

func TestDoctor_SpecializationVariants(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantPrimary   string
		wantSecondary []string
	}{
		{"object", `{"specialization":{"primary":"Dermatology","secondary":["Cosmetology"]}}`, "Dermatology", []string{"Cosmetology"}},
		{"encoded object with secondary", `{"specialization":"{\"primary\":\"ENT\",\"secondary\":[\"Audiology\"]}"}`, "ENT", []string{"Audiology"}},
		{"encoded array", `{"specialization":"[\"Pediatrics\",\"Neonatology\"]"}`, "Pediatrics", []string{"Neonatology"}},
		{"plain text", `{"specialization":"Orthopedics"}`, "Orthopedics", []string{}},
		{"encoded scalar", `{"specialization":"[1"}`, "", []string{}},
		{"missing", `{}`, "", []string{}},
	}
	n := NewNormalizer(500)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Doctor(decode(t, tt.body))
			assert.Equal(t, tt.wantPrimary, got.Specialization.Primary)
			assert.Equal(t, tt.wantSecondary, got.Specialization.Secondary)
		})
	}
}

func TestDoctor_ExplicitFieldsWin(t *testing.T) {
	n := NewNormalizer(500)
	got := n.Doctor(decode(t, `{
		"id": "d-1",
		"firstName": "Priya",
		"first_name": "Ignored",
		"last_name": "Shah",
		"name": "Dr Priya Shah",
		"specialty": "Neurology",
		"specialization": "{\"primary\":\"Cardiology\"}",
		"consultationFee": 800,
		"consultation_fee": 100
	}`))

	assert.Equal(t, "Priya", got.FirstName)
	assert.Equal(t, "Shah", got.LastName)
	assert.Equal(t, "Dr Priya Shah", got.Name)
	assert.Equal(t, "Neurology", got.Specialty)
	assert.Equal(t, "Cardiology", got.Specialization.Primary)
	assert.Equal(t, 800.0, got.ConsultationFee)
}

func TestDoctor_SnakeCaseFallbacksAndDefaults(t *testing.T) {
	n := NewNormalizer(650)

	got := n.Doctor(decode(t, `{
		"doctor_id": 99,
		"user": {"first_name": "Arjun", "last_name": "Mehta", "email": "arjun@example.com"},
		"consultation_fee": "1200.50",
		"languages_spoken": "[\"English\",\"Hindi\"]",
		"years_of_experience": 12,
		"average_rating": 4.6,
		"profile_image": "https://cdn.example.com/a.png",
		"hospital": {"name": "City Care"}
	}`))

	assert.Equal(t, "99", got.ID)
	assert.Equal(t, "Arjun", got.FirstName)
	assert.Equal(t, "Mehta", got.LastName)
	assert.Equal(t, "Arjun Mehta", got.Name)
	assert.Equal(t, "arjun@example.com", got.Email)
	assert.Equal(t, 1200.50, got.ConsultationFee)
	assert.Equal(t, []string{"English", "Hindi"}, got.Languages)
	assert.Equal(t, 12, got.ExperienceYears)
	assert.Equal(t, 4.6, got.Rating)
	assert.Equal(t, "https://cdn.example.com/a.png", got.AvatarURL)
	assert.Equal(t, "City Care", got.Hospital)

	empty := n.Doctor(map[string]any{})
	assert.Equal(t, 650.0, empty.ConsultationFee)
	assert.Equal(t, DefaultSpecialty, empty.Specialty)
	assert.Equal(t, []string{}, empty.Languages)
}

func TestDoctor_LanguagesFallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"array", `{"languages":["Tamil"," "]}`, []string{"Tamil"}},
		{"broken json", `{"languages_spoken":"[\"English\""}`, []string{}},
		{"comma separated", `{"languages_spoken":"English, Marathi"}`, []string{"English", "Marathi"}},
		{"wrong type", `{"languages_spoken":42}`, []string{}},
	}
	n := NewNormalizer(500)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Doctor(decode(t, tt.body)).Languages)
		})
	}
}

func TestDoctor_UnparsableFeeUsesDefault(t *testing.T) {
	n := NewNormalizer(500)
	got := n.Doctor(decode(t, `{"consultation_fee":"free"}`))
	assert.Equal(t, 500.0, got.ConsultationFee)
}

func TestDoctorList_Shapes(t *testing.T) {
	n := NewNormalizer(500)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bare array", `[{"name":"A B"},{"name":"C D"}]`, 2},
		{"doctors key", `{"doctors":[{"name":"A B"}]}`, 1},
		{"data key", `{"data":[{"name":"A B"},"junk"]}`, 1},
		{"results key", `{"results":[]}`, 0},
		{"unknown", `{"items":[{"name":"A B"}]}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body any
			require.NoError(t, json.Unmarshal([]byte(tt.body), &body))
			got := n.DoctorList(body)
			assert.Equal(t, tt.want, got.Count)
			assert.Len(t, got.Doctors, tt.want)
			assert.NotNil(t, got.Doctors)
		})
	}
}
