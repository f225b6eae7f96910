package hxdrive

import "context"

// Next continues the middleware chain. The final Next executes the
// request itself.
type Next func(ctx context.Context, req *Request) (*Response, error)

// Middleware wraps request finalization and execution. A stage may inspect
// or mutate the descriptor before calling next, transform the result
// afterward, or short-circuit by returning without calling next at all.
//
//	engine.Use(func(ctx context.Context, req *hxdrive.Request, next hxdrive.Next) (*hxdrive.Response, error) {
//	    req.Headers["X-Trace"] = trace.FromContext(ctx)
//	    return next(ctx, req)
//	})
type Middleware func(ctx context.Context, req *Request, next Next) (*Response, error)

// chainMiddleware folds stages around terminal in registration order, so
// the first registered middleware is outermost.
func chainMiddleware(stages []Middleware, terminal Next) Next {
	next := terminal
	for i := len(stages) - 1; i >= 0; i-- {
		stage, inner := stages[i], next
		next = func(ctx context.Context, req *Request) (*Response, error) {
			return stage(ctx, req, inner)
		}
	}
	return next
}
