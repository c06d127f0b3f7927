// Package context holds the small context helpers shared by the scheduling packages.
package context

import (
	"context"
	"time"
)

// WithOptionalTimeout bounds ctx by timeout when timeout is positive.
// The returned cancel func is always safe to call.
func WithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, timeout)
}

// Detach returns a context that keeps parent's values but is never canceled
// by parent. In-flight work uses it so a canceled run stops admitting
// without interrupting tasks that already hold a slot.
func Detach(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsTimedOut returns true if the context was canceled due to a timeout
func IsTimedOut(ctx context.Context) bool {
	return ctx.Err() == context.DeadlineExceeded
}
