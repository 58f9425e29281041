package routeauth

import "context"

type contextKey string

const contextKeySessionID contextKey = "session_id"

// WithSessionID returns a context carrying the caller's session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKeySessionID, sessionID)
}

// SessionIDFromContext returns the session id stored by WithSessionID, or "".
func SessionIDFromContext(ctx context.Context) string {
	sessionID, _ := ctx.Value(contextKeySessionID).(string)
	return sessionID
}
