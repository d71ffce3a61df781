package session

import "context"

type ctxKey string

const idContextKey ctxKey = "ghia.session.id"

func withID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idContextKey, id)
}

// WithID is for tests and callers that resolve the session themselves.
func WithID(ctx context.Context, id string) context.Context {
	return withID(ctx, id)
}

func IDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(idContextKey).(string)
	return v, ok && v != ""
}
