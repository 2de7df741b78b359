package logging

import "context"

type ctxKey struct{}

// WithRequestID returns a context whose log records carry request_id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the id stored by WithRequestID.
func RequestID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}

// contextArgs appends the request id, if any, to args.
func contextArgs(ctx context.Context, args []any) []any {
	if id, ok := RequestID(ctx); ok {
		return append(args[:len(args):len(args)], "request_id", id)
	}
	return args
}
