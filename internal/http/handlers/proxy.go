package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/telehealth-bff/internal/apierr"
	"github.com/wolfman30/telehealth-bff/internal/auth"
	"github.com/wolfman30/telehealth-bff/internal/gateway"
	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

// Caller runs one endpoint through the backend gateway.
type Caller interface {
	Do(ctx context.Context, ep gateway.Endpoint, res auth.Result, req gateway.Request, inbound http.Header) (*gateway.Payload, *apierr.Error)
}

// Proxy relays BFF routes to backend endpoints.
type Proxy struct {
	gw     Caller
	logger *logging.Logger
}

// NewProxy creates a proxy over gw.
func NewProxy(gw Caller, logger *logging.Logger) *Proxy {
	if logger == nil {
		logger = logging.Default()
	}
	return &Proxy{gw: gw, logger: logger}
}

type route struct {
	method  string
	pattern string
	ep      gateway.Endpoint
}

func (p *Proxy) register(r chi.Router, routes []route) {
	for _, rt := range routes {
		r.Method(rt.method, rt.pattern, p.Forward(rt.ep))
	}
}

// Forward returns a handler relaying path params, the query string and any JSON body
// to ep.
func (p *Proxy) Forward(ep gateway.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, apiErr := ep.Expand(routeParams(r))
		if apiErr != nil {
			apierr.Write(w, apiErr)
			return
		}
		req := gateway.Request{
			Path:  path,
			Query: r.URL.Query(),
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			body, apiErr := readJSONBody(r)
			if apiErr != nil {
				apierr.Write(w, apiErr)
				return
			}
			if body != nil {
				req.Body = body
			}
		}
		p.relay(w, r, ep, req)
	}
}

func (p *Proxy) relay(w http.ResponseWriter, r *http.Request, ep gateway.Endpoint, req gateway.Request) {
	payload, apiErr := p.call(r, ep, req)
	if apiErr != nil {
		apierr.Write(w, apiErr)
		return
	}
	writePayload(w, payload)
}

func (p *Proxy) call(r *http.Request, ep gateway.Endpoint, req gateway.Request) (*gateway.Payload, *apierr.Error) {
	return p.gw.Do(r.Context(), ep, auth.FromContext(r.Context()), req, r.Header)
}
