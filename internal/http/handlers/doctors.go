package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/telehealth-bff/internal/gateway"
	"github.com/wolfman30/telehealth-bff/internal/profiles"
)

// DoctorsHandler serves doctor discovery with normalized profiles.
type DoctorsHandler struct {
	proxy      *Proxy
	normalizer *profiles.Normalizer
}

// NewDoctorsHandler creates a doctors handler.
func NewDoctorsHandler(proxy *Proxy, normalizer *profiles.Normalizer) *DoctorsHandler {
	if normalizer == nil {
		normalizer = profiles.NewNormalizer(0)
	}
	return &DoctorsHandler{proxy: proxy, normalizer: normalizer}
}

func (h *DoctorsHandler) listEndpoint() gateway.Endpoint {
	return gateway.Endpoint{
		Name:    "doctors.list",
		Backend: gateway.BackendAPI,
		Method:  http.MethodGet,
		Path:    "/doctors",
		Shape:   func(body any) any { return h.normalizer.DoctorList(body) },
	}
}

// A missing doctor is surfaced as 404, unlike the collection endpoints.
func (h *DoctorsHandler) getEndpoint() gateway.Endpoint {
	return gateway.Endpoint{
		Name:    "doctors.get",
		Backend: gateway.BackendAPI,
		Method:  http.MethodGet,
		Path:    "/doctors/{id}",
		Shape:   h.shapeDoctor,
	}
}

var doctorSlotsEndpoint = gateway.Endpoint{
	Name:    "doctors.slots",
	Backend: gateway.BackendAPI,
	Method:  http.MethodGet,
	Path:    "/doctors/{id}/slots",
	EmptyOn404: func() any {
		return map[string]any{"slots": []any{}, "available_slots": []any{}}
	},
}

func (h *DoctorsHandler) shapeDoctor(body any) any {
	m, ok := body.(map[string]any)
	if !ok {
		return body
	}
	for _, key := range []string{"doctor", "data"} {
		if inner, ok := m[key].(map[string]any); ok {
			m = inner
			break
		}
	}
	return h.normalizer.Doctor(m)
}

// Routes returns the doctor routes, mounted under /api/doctors.
func (h *DoctorsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.proxy.Forward(h.listEndpoint()))
	r.Get("/{id}", h.proxy.Forward(h.getEndpoint()))
	r.Get("/{id}/slots", h.proxy.Forward(doctorSlotsEndpoint))
	return r
}
