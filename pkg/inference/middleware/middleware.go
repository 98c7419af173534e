// Package middleware wraps model invocations with cross-cutting behavior.
package middleware

import (
	"context"

	"github.com/go-go-golems/parley/pkg/inference/engine"
)

// HandlerFunc performs one model invocation. onTextDelta is nil for
// whole-response calls.
type HandlerFunc func(ctx context.Context, req engine.Request, onTextDelta engine.TextDeltaFunc) (*engine.Result, error)

// Middleware wraps a HandlerFunc with additional functionality.
// Middleware are applied in order: Chain(h, m1, m2, m3) results in m1(m2(m3(h))).
type Middleware func(HandlerFunc) HandlerFunc

// Chain composes multiple middleware into a single HandlerFunc.
func Chain(handler HandlerFunc, middlewares ...Middleware) HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// engineHandlerFunc adapts an Engine to HandlerFunc. Engines without
// streaming support answer streaming calls with one whole response,
// forwarded as a single delta.
func engineHandlerFunc(e engine.Engine) HandlerFunc {
	return func(ctx context.Context, req engine.Request, onTextDelta engine.TextDeltaFunc) (*engine.Result, error) {
		if onTextDelta == nil {
			return e.Invoke(ctx, req)
		}
		if se, ok := e.(engine.StreamingEngine); ok {
			return se.InvokeStream(ctx, req, onTextDelta)
		}
		res, err := e.Invoke(ctx, req)
		if err != nil {
			return nil, err
		}
		if res != nil && res.Text != "" {
			onTextDelta(res.Text)
		}
		return res, nil
	}
}

// EngineWithMiddleware wraps an Engine with a middleware chain.
type EngineWithMiddleware struct {
	handler HandlerFunc
}

var _ engine.StreamingEngine = (*EngineWithMiddleware)(nil)

func NewEngineWithMiddleware(e engine.Engine, middlewares ...Middleware) *EngineWithMiddleware {
	return &EngineWithMiddleware{handler: Chain(engineHandlerFunc(e), middlewares...)}
}

func (e *EngineWithMiddleware) Invoke(ctx context.Context, req engine.Request) (*engine.Result, error) {
	return e.handler(ctx, req, nil)
}

func (e *EngineWithMiddleware) InvokeStream(ctx context.Context, req engine.Request, onTextDelta engine.TextDeltaFunc) (*engine.Result, error) {
	if onTextDelta == nil {
		onTextDelta = func(string) {}
	}
	return e.handler(ctx, req, onTextDelta)
}
