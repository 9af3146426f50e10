package authz

import (
	"context"
	"sync"
)

// Memo is a request-scoped answer cache layered under the TTL cache. It
// lives for one request, so it needs no invalidation and no expiry; it
// only saves repeated cache-store round trips when a single request
// checks many capabilities.
type Memo struct {
	mu      sync.Mutex
	answers map[string]bool
}

func (m *Memo) get(key string) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.answers[key]
	return v, ok
}

func (m *Memo) set(key string, value bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.answers == nil {
		m.answers = make(map[string]bool)
	}
	m.answers[key] = value
}

type memoContextKey struct{}

// WithMemo attaches a fresh request memo to the context.
func WithMemo(ctx context.Context) context.Context {
	return context.WithValue(ctx, memoContextKey{}, &Memo{})
}

// memoFromContext returns the request memo, if one was installed.
func memoFromContext(ctx context.Context) *Memo {
	memo, _ := ctx.Value(memoContextKey{}).(*Memo)
	return memo
}
