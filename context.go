package goICloud

import (
	"context"

	"github.com/MrEthical07/goICloud/session"
)

type sessionContextKey struct{}

// WithSession attaches sess to ctx. Handlers behind the handoff middleware
// read it back with SessionFromContext.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the session attached by WithSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	if ctx == nil {
		return nil, false
	}
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok && sess != nil
}
