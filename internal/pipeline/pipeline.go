// Package pipeline implements the middleware composition primitive: an
// ordered sequence of middleware terminated by an endpoint, bound into a
// single callable handler (spec §4.1).
//
// Middleware is modeled as a factory — middleware(next Handler) Handler —
// the idiomatic Go shape (mirrored by the teacher's own server.Chain),
// which makes a node's successor immutable once bound instead of mutable
// shared state.
package pipeline

import (
	"github.com/ripta/corehttp/internal/corerr"
	"github.com/ripta/corehttp/internal/httpenv"
)

// Handler handles a request environment and produces a response triple.
type Handler func(env *httpenv.Env) (httpenv.Response, error)

// Middleware wraps a successor Handler to produce a new Handler. The first
// middleware appended is the outermost layer: for middleware A, B and
// endpoint E, the call order is A→B→E and responses unwind B→A.
type Middleware func(next Handler) Handler

// Builder orders middleware and an endpoint, and binds them into a single
// callable handler on Build.
type Builder struct {
	middlewares []Middleware
	endpoint    Handler

	built    Handler
	dirty    bool
	hasBuilt bool
}

// New returns an empty builder. Middleware and the endpoint are added with
// Append/Prepend/SetEndpoint.
func New() *Builder {
	return &Builder{dirty: true}
}

// NewFromList constructs a builder from an ordered list of middleware and
// an endpoint in one step: equivalent to constructing an empty builder,
// appending each middleware in list order, then setting the endpoint.
func NewFromList(middlewares []Middleware, endpoint Handler) *Builder {
	b := New()
	for _, m := range middlewares {
		b.Append(m)
	}
	b.SetEndpoint(endpoint)
	return b
}

// Append adds m as the next-innermost layer (closest to the previous
// innermost middleware, furthest from the endpoint among existing layers
// is unaffected — m becomes the new innermost until another Append/Prepend).
func (b *Builder) Append(m Middleware) error {
	if m == nil {
		return corerr.ErrInvalidArgument
	}
	b.middlewares = append(b.middlewares, m)
	b.dirty = true
	return nil
}

// Prepend inserts m as the new outermost layer.
func (b *Builder) Prepend(m Middleware) error {
	if m == nil {
		return corerr.ErrInvalidArgument
	}
	b.middlewares = append([]Middleware{m}, b.middlewares...)
	b.dirty = true
	return nil
}

// SetEndpoint sets the terminal handler.
func (b *Builder) SetEndpoint(h Handler) error {
	if h == nil {
		return corerr.ErrInvalidArgument
	}
	b.endpoint = h
	b.dirty = true
	return nil
}

// Build walks the middleware list from last to first, binding each
// middleware's successor to the middleware that immediately follows it (or
// the endpoint, for the last one), and returns the first middleware if any
// exist, otherwise the endpoint itself. The result is cached; Build only
// re-binds if the middleware list or endpoint changed since the last call.
func (b *Builder) Build() (Handler, error) {
	if !b.dirty && b.hasBuilt {
		return b.built, nil
	}
	if b.endpoint == nil {
		return nil, corerr.ErrNoEndpoint
	}

	h := b.endpoint
	for i := len(b.middlewares) - 1; i >= 0; i-- {
		h = b.middlewares[i](h)
	}

	b.built = h
	b.dirty = false
	b.hasBuilt = true
	return b.built, nil
}

// Invoke builds (if needed) and invokes the pipeline with env in one step.
func (b *Builder) Invoke(env *httpenv.Env) (httpenv.Response, error) {
	h, err := b.Build()
	if err != nil {
		return httpenv.Response{}, err
	}
	return h(env)
}
