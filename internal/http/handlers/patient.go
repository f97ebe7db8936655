package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/telehealth-bff/internal/apierr"
	"github.com/wolfman30/telehealth-bff/internal/gateway"
)

const maxUploadBytes = 32 << 20

func apiEndpoint(name, method, path string) gateway.Endpoint {
	return gateway.Endpoint{Name: name, Backend: gateway.BackendAPI, Method: method, Path: path}
}

func withEmpty(ep gateway.Endpoint, empty func() any) gateway.Endpoint {
	ep.EmptyOn404 = empty
	return ep
}

var (
	labReportUploadEndpoint   = apiEndpoint("lab_reports.upload", http.MethodPost, "/lab-reports")
	appointmentReviewEndpoint = apiEndpoint("appointments.review", http.MethodPost, "/appointments/{id}/review")
)

var patientRoutes = []route{
	{http.MethodGet, "/appointments", withEmpty(apiEndpoint("appointments.list", http.MethodGet, "/appointments"), emptyList("appointments"))},
	{http.MethodPost, "/appointments", apiEndpoint("appointments.create", http.MethodPost, "/appointments")},
	{http.MethodGet, "/appointments/{id}", apiEndpoint("appointments.get", http.MethodGet, "/appointments/{id}")},
	{http.MethodPost, "/appointments/{id}/cancel", apiEndpoint("appointments.cancel", http.MethodPost, "/appointments/{id}/cancel")},

	{http.MethodGet, "/prescriptions", withEmpty(apiEndpoint("prescriptions.list", http.MethodGet, "/prescriptions"), emptyList("prescriptions"))},
	{http.MethodGet, "/lab-reports", withEmpty(apiEndpoint("lab_reports.list", http.MethodGet, "/lab-reports"), emptyList("lab_reports"))},

	{http.MethodGet, "/patients/organizations", withEmpty(apiEndpoint("patients.organizations", http.MethodGet, "/patients/organizations"), func() any {
		return map[string]any{"organizations": []any{}, "count": 0}
	})},
	{http.MethodGet, "/family-members", withEmpty(apiEndpoint("family_members.list", http.MethodGet, "/family-members"), emptyList("family_members"))},
	{http.MethodPost, "/family-members", apiEndpoint("family_members.create", http.MethodPost, "/family-members")},

	{http.MethodGet, "/kyc/status", apiEndpoint("kyc.status", http.MethodGet, "/kyc/status")},
	{http.MethodPost, "/kyc", apiEndpoint("kyc.submit", http.MethodPost, "/kyc")},

	{http.MethodGet, "/profile", apiEndpoint("profile.get", http.MethodGet, "/profile")},
	{http.MethodPut, "/profile", apiEndpoint("profile.update", http.MethodPut, "/profile")},
	{http.MethodGet, "/profile/roles", apiEndpoint("profile.roles", http.MethodGet, "/profile/roles")},

	{http.MethodGet, "/hospitals", withEmpty(apiEndpoint("hospitals.list", http.MethodGet, "/hospitals"), emptyList("hospitals"))},
	{http.MethodGet, "/medicines", withEmpty(apiEndpoint("medicines.list", http.MethodGet, "/medicines"), emptyList("medicines"))},
}

// PatientHandler serves appointments, medical records, KYC and profile routes.
type PatientHandler struct {
	proxy *Proxy
}

// NewPatientHandler creates a patient handler.
func NewPatientHandler(proxy *Proxy) *PatientHandler {
	return &PatientHandler{proxy: proxy}
}

// Register adds the patient routes to r.
func (h *PatientHandler) Register(r chi.Router) {
	h.proxy.register(r, patientRoutes)
	r.Post("/appointments/{id}/review", h.ReviewAppointment)
	r.Post("/lab-reports", h.UploadLabReport)
}

// ReviewAppointment validates the rating before forwarding the review.
func (h *PatientHandler) ReviewAppointment(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		apierr.Write(w, apiErr)
		return
	}
	rating, ok := req["rating"].(json.Number)
	if !ok {
		apierr.Write(w, apierr.BadRequest("Rating must be between 1 and 5"))
		return
	}
	value, err := rating.Float64()
	if err != nil || value < 1 || value > 5 {
		apierr.Write(w, apierr.BadRequest("Rating must be between 1 and 5"))
		return
	}

	if comment, ok := req["comment"].(string); ok {
		req["comment"] = strings.TrimSpace(comment)
	}
	path, apiErr := appointmentReviewEndpoint.Expand(routeParams(r))
	if apiErr != nil {
		apierr.Write(w, apiErr)
		return
	}
	h.proxy.relay(w, r, appointmentReviewEndpoint, gateway.Request{Path: path, Body: req})
}

// UploadLabReport re-encodes a multipart upload for the backend. The file and title
// are checked before any backend call.
func (h *PatientHandler) UploadLabReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		apierr.Write(w, apierr.BadRequest("File and title are required"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierr.Write(w, apierr.BadRequest("File is required"))
		return
	}
	defer file.Close()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		apierr.Write(w, apierr.BadRequest("Title is required"))
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		apierr.Write(w, apierr.BadRequest("Unable to read uploaded file"))
		return
	}

	fields := map[string]string{"title": title}
	for key, values := range r.MultipartForm.Value {
		if key == "title" || len(values) == 0 {
			continue
		}
		fields[key] = values[0]
	}

	h.proxy.relay(w, r, labReportUploadEndpoint, gateway.Request{
		Path: labReportUploadEndpoint.Path,
		Multipart: &gateway.Multipart{
			Fields: fields,
			Files: []gateway.FilePart{{
				Field:       "file",
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Content:     content,
			}},
		},
	})
}
