package agent

import (
	"context"

	ctxpkg "github.com/aschepis/backscratcher/converse/context"
)

// DebugCallback receives human-readable progress lines for a single SendMessage call.
type DebugCallback func(string)

// WithDebugCallback adds a DebugCallback to the context
func WithDebugCallback(ctx context.Context, cb DebugCallback) context.Context {
	return ctxpkg.WithDebugCallback(ctx, cb)
}

// GetDebugCallback retrieves a DebugCallback from the context.
// Returns the callback and a bool indicating if it was set.
func GetDebugCallback(ctx context.Context) (DebugCallback, bool) {
	cb, ok := ctxpkg.GetDebugCallback(ctx)
	if cb == nil {
		return nil, false
	}
	return DebugCallback(cb), ok
}

func debugf(ctx context.Context, msg string) {
	if cb, ok := GetDebugCallback(ctx); ok {
		cb(msg)
	}
}
