package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession attaches the session to the context. A nil session
// leaves the context untouched so SessionFromContext stays a reliable
// "is there a session" probe.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	if sess == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the request session, or nil outside the
// session middleware.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}
