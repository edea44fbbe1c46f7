package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	ctxpkg "github.com/aschepis/backscratcher/converse/context"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
)

const maxLoggedResult = 500

// Outcome is the normalized result of one tool call.
type Outcome struct {
	// Block is the tool result sent back to the model.
	Block llm.ToolResultBlock
	// LLMResult is the payload serialized into Block.Content. It is passed as
	// PreviousOutput to the next call in the same batch.
	LLMResult map[string]any
	// UIData is the renderer output, or Result.UIData when the tool has no renderer.
	UIData any
	// Err is set when the call failed. It has already been folded into Block.
	Err error
}

// Executor runs model-issued tool calls against a Registry.
type Executor struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewExecutor creates an executor over registry.
func NewExecutor(registry *Registry, logger zerolog.Logger) *Executor {
	return &Executor{
		registry: registry,
		logger:   logger.With().Str("component", "tool_executor").Logger(),
	}
}

// Execute runs one tool call. It never returns an error: unknown tools,
// unparsable arguments, tool errors, panics and unserializable results all
// become a {"success": false} result flagged IsError, so the model can recover
// on its next turn.
func (e *Executor) Execute(ctx context.Context, call llm.ToolUseBlock, previousOutput any) Outcome {
	logger := e.logger.With().Str("tool", call.Name).Str("call_id", call.ID).Logger()
	dbg, _ := ctxpkg.GetDebugCallback(ctx)

	def, ok := e.registry.Get(call.Name)
	if !ok {
		logger.Error().Msg("Unknown tool requested")
		return failureOutcome(call, llm.NewToolExecutionError(call.Name, fmt.Errorf("unknown tool: %s", call.Name)))
	}

	if call.InputError != "" {
		logger.Warn().Str("input_error", call.InputError).Msg("Tool called with malformed arguments")
		return failureOutcome(call, llm.NewToolExecutionError(call.Name, fmt.Errorf("malformed arguments: %s", call.InputError)))
	}

	outer, _ := ctxpkg.ToolCallFromContext(ctx)
	ctx = ctxpkg.WithToolCall(ctx, ctxpkg.ToolCall{ID: call.ID, Name: call.Name, Step: outer.Step})
	args := call.Input
	if args == nil {
		args = map[string]any{}
	}
	toolCall := Call{
		FunctionName:    call.Name,
		FunctionArgs:    args,
		FunctionContext: def.Context,
		PreviousOutput:  previousOutput,
	}

	if dbg != nil {
		dbg(fmt.Sprintf("Executing tool: %s", call.Name))
	}
	if argBytes, err := json.MarshalIndent(args, "", "  "); err == nil {
		logger.Debug().Str("args", string(argBytes)).Msg("Tool called with arguments")
	}

	result, err := invoke(ctx, def.Execute, toolCall)
	if err != nil {
		logger.Warn().Err(err).Msg("Tool returned error")
		if dbg != nil {
			dbg(fmt.Sprintf("Tool error: %v", err))
		}
		return failureOutcome(call, llm.NewToolExecutionError(call.Name, err))
	}

	payload := result.Payload()
	content, err := json.Marshal(payload)
	if err != nil {
		logger.Warn().Err(err).Msg("Tool returned a result that cannot be serialized")
		return failureOutcome(call, llm.NewToolExecutionError(call.Name, fmt.Errorf("malformed result: %w", err)))
	}

	logged := string(content)
	if len(logged) > maxLoggedResult {
		logged = logged[:maxLoggedResult] + "... (truncated)"
	}
	logger.Info().Str("result", logged).Msg("Tool returned result")
	if dbg != nil {
		dbg(fmt.Sprintf("Tool result: %s", logged))
	}

	out := Outcome{
		Block: llm.ToolResultBlock{
			ID:      call.ID,
			Name:    call.Name,
			Content: string(content),
			IsError: !result.Success,
		},
		LLMResult: payload,
		UIData:    result.UIData,
	}
	if def.UIRenderer != nil {
		ui, err := render(ctx, def.UIRenderer, toolCall, result)
		if err != nil {
			logger.Warn().Err(err).Msg("UI renderer failed; dropping UI payload")
		} else {
			out.UIData = ui
		}
	}
	return out
}

func failureOutcome(call llm.ToolUseBlock, err error) Outcome {
	details := err.Error()
	var llmErr *llm.Error
	if errors.As(err, &llmErr) && llmErr.Type == llm.ErrorTypeToolExecution && llmErr.ProviderErr != nil {
		details = llmErr.ProviderErr.Error()
	}
	payload := map[string]any{
		"success": false,
		"details": details,
	}
	// A two-string map always marshals.
	content, _ := json.Marshal(payload)
	return Outcome{
		Block: llm.ToolResultBlock{
			ID:      call.ID,
			Name:    call.Name,
			Content: string(content),
			IsError: true,
		},
		LLMResult: payload,
		Err:       err,
	}
}

// AbortedOutcome is the result recorded for a call that never ran because the turn was stopped.
func AbortedOutcome(call llm.ToolUseBlock) Outcome {
	return failureOutcome(call, llm.NewAbortedError())
}

func invoke(ctx context.Context, fn Func, call Call) (result Result, err error) {
	if fn == nil {
		return Result{}, errors.New("tool has no execute function")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return fn(ctx, call)
}

func render(ctx context.Context, fn UIRenderer, call Call, result Result) (ui any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panicked: %v", r)
		}
	}()
	return fn(ctx, call, result)
}
