// Package tools holds the functions a model may call during a conversation:
// their definitions, the registry that looks them up by name, and the executor
// that turns one model-issued call into a tool result message.
package tools

import (
	"context"

	"github.com/aschepis/backscratcher/converse/llm"
)

// Call is what a tool function receives for one model-issued call.
type Call struct {
	FunctionName    string
	FunctionArgs    map[string]any
	FunctionContext any // Definition.Context, as registered
	PreviousOutput  any // result of the previous call in the same batch, nil for the first
}

// Result is what a tool function returns. Data is merged into the payload the
// model sees; UIData is handed to the caller and never sent to the model.
type Result struct {
	Success bool
	Data    any
	UIData  any
}

// Func executes a tool call.
type Func func(ctx context.Context, call Call) (Result, error)

// UIRenderer maps a successful result to a payload for the host application.
type UIRenderer func(ctx context.Context, call Call, result Result) (any, error)

// Definition describes one tool.
type Definition struct {
	Name        string
	Description string
	Schema      llm.ToolSchema
	Execute     Func
	Context     any
	UIRenderer  UIRenderer
}

// Spec returns the provider-neutral schema sent to the model.
func (d Definition) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        d.Name,
		Description: d.Description,
		Schema:      d.Schema,
	}
}

// Payload renders the result as the object the model sees:
// {"success": bool, ...data}. Map data is flattened; anything else goes under "result".
func (r Result) Payload() map[string]any {
	out := map[string]any{}
	switch data := r.Data.(type) {
	case nil:
	case map[string]any:
		for k, v := range data {
			out[k] = v
		}
	default:
		out["result"] = data
	}
	out["success"] = r.Success
	return out
}

// OK wraps data in a successful Result.
func OK(data any) Result {
	return Result{Success: true, Data: data}
}
