package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/telehealth-bff/internal/gateway"
)

func socialEndpoint(name, method, path string) gateway.Endpoint {
	return gateway.Endpoint{Name: name, Backend: gateway.BackendSocial, Method: method, Path: path}
}

var socialRoutes = []route{
	{http.MethodGet, "/feed", withEmpty(socialEndpoint("social.feed", http.MethodGet, "/feed"), emptyList("posts"))},
	{http.MethodGet, "/explore", withEmpty(socialEndpoint("social.explore", http.MethodGet, "/explore"), emptyList("posts"))},
	{http.MethodGet, "/posts", withEmpty(socialEndpoint("social.posts.list", http.MethodGet, "/posts"), emptyList("posts"))},
	{http.MethodPost, "/posts", socialEndpoint("social.posts.create", http.MethodPost, "/posts")},
	{http.MethodPost, "/posts/{id}/like", socialEndpoint("social.posts.like", http.MethodPost, "/posts/{id}/like")},
	{http.MethodPost, "/posts/{id}/save", socialEndpoint("social.posts.save", http.MethodPost, "/posts/{id}/save")},
	{http.MethodGet, "/posts/{id}/comments", withEmpty(socialEndpoint("social.comments.list", http.MethodGet, "/posts/{id}/comments"), emptyList("comments"))},
	{http.MethodPost, "/posts/{id}/comments", socialEndpoint("social.comments.create", http.MethodPost, "/posts/{id}/comments")},
	{http.MethodGet, "/stories", withEmpty(socialEndpoint("social.stories", http.MethodGet, "/stories"), emptyList("stories"))},
}

// SocialHandler relays the social feed to the social service with X-User-ID hints.
type SocialHandler struct {
	proxy *Proxy
}

// NewSocialHandler creates a social handler.
func NewSocialHandler(proxy *Proxy) *SocialHandler {
	return &SocialHandler{proxy: proxy}
}

// Routes returns the social routes, mounted under /api/social.
func (h *SocialHandler) Routes() chi.Router {
	r := chi.NewRouter()
	h.proxy.register(r, socialRoutes)
	return r
}
