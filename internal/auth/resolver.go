package auth

import (
	"fmt"
	"net/http"

	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

// Strategy inspects one credential source. It returns nil when the source produced
// nothing usable.
type Strategy interface {
	Resolve(r *http.Request) *Result
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(r *http.Request) *Result

func (f StrategyFunc) Resolve(r *http.Request) *Result { return f(r) }

// SourceObserver is notified of every resolution outcome ("none" when unauthenticated).
type SourceObserver interface {
	ObserveCredentialSource(source string)
}

// Resolver tries its strategies in order and stops at the first credential.
type Resolver struct {
	strategies []Strategy
	logger     *logging.Logger
	observer   SourceObserver
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithObserver reports resolution outcomes to obs.
func WithObserver(obs SourceObserver) ResolverOption {
	return func(r *Resolver) { r.observer = obs }
}

// NewResolver builds a resolver over strategies, tried in the given order.
func NewResolver(logger *logging.Logger, strategies []Strategy, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Resolver{strategies: strategies, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never fails: every problem inside a strategy degrades to "nothing found".
func (r *Resolver) Resolve(req *http.Request) Result {
	for i, s := range r.strategies {
		res := r.try(i, s, req)
		if res == nil || !res.Authenticated() {
			continue
		}
		if res.Identity != nil && res.Identity.ID == "" {
			res.Identity = nil
		}
		r.observe(string(res.Credential.Source))
		return *res
	}
	r.observe("none")
	return Result{}
}

func (r *Resolver) try(index int, s Strategy, req *http.Request) (res *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("credential strategy panicked",
				"strategy_index", index,
				"error", fmt.Sprint(rec),
			)
			res = nil
		}
	}()
	return s.Resolve(req)
}

func (r *Resolver) observe(source string) {
	if r.observer != nil {
		r.observer.ObserveCredentialSource(source)
	}
}
