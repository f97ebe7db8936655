package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/telehealth-bff/internal/gateway"
)

var videoRoutes = []route{
	{http.MethodGet, "/rooms/{id}", gateway.Endpoint{Name: "video.room", Backend: gateway.BackendVideo, Method: http.MethodGet, Path: "/rooms/{id}"}},
	{http.MethodPost, "/rooms/{id}/join", gateway.Endpoint{Name: "video.join", Backend: gateway.BackendVideo, Method: http.MethodPost, Path: "/rooms/{id}/join"}},
	{http.MethodGet, "/turn", gateway.Endpoint{Name: "video.turn", Backend: gateway.BackendVideo, Method: http.MethodGet, Path: "/turn"}},
}

// VideoHandler relays consultation room calls; the inbound Authorization header is
// forwarded as-is.
type VideoHandler struct {
	proxy *Proxy
}

// NewVideoHandler creates a video handler.
func NewVideoHandler(proxy *Proxy) *VideoHandler {
	return &VideoHandler{proxy: proxy}
}

// Routes returns the video routes, mounted under /api/video.
func (h *VideoHandler) Routes() chi.Router {
	r := chi.NewRouter()
	h.proxy.register(r, videoRoutes)
	return r
}
