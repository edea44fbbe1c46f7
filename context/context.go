// Package context carries conversation metadata on a standard context.Context.
// It lives in its own package so tools, the executor and the conversation loop
// can share keys without importing each other.
package context

import (
	stdctx "context"
)

// debugCallbackKey is the type used as a context key for storing debug callbacks.
type debugCallbackKey struct{}

// toolCallKey is the context key for the tool call currently being executed.
type toolCallKey struct{}

// ToolCall identifies the model-issued call a tool function is serving.
type ToolCall struct {
	ID   string
	Name string
	Step int
}

// WithDebugCallback adds a debug callback function to the context.
// The callback function should accept a string message parameter.
func WithDebugCallback(ctx stdctx.Context, cb func(string)) stdctx.Context {
	return stdctx.WithValue(ctx, debugCallbackKey{}, cb)
}

// GetDebugCallback retrieves a debug callback function from the context.
// Returns the callback and a bool indicating if it was set.
func GetDebugCallback(ctx stdctx.Context) (func(string), bool) {
	cb, ok := ctx.Value(debugCallbackKey{}).(func(string))
	return cb, ok
}

// WithToolCall records the tool call being executed.
func WithToolCall(ctx stdctx.Context, call ToolCall) stdctx.Context {
	return stdctx.WithValue(ctx, toolCallKey{}, call)
}

// ToolCallFromContext returns the tool call recorded by WithToolCall.
func ToolCallFromContext(ctx stdctx.Context) (ToolCall, bool) {
	call, ok := ctx.Value(toolCallKey{}).(ToolCall)
	return call, ok
}
