// Package llm provides a provider-neutral abstraction layer for streaming Large Language Model APIs.
//
// This package defines common types, interfaces, and utilities that allow the conversation
// engine to work with multiple LLM providers (Anthropic, OpenAI, Ollama, Gemini) without being
// tightly coupled to any specific provider's SDK.
//
// # Core Concepts
//
//  1. Messages: The Message type represents a conversation message with a role (system, user,
//     assistant, tool), content blocks (text, image, file, tool use, tool result) and the tool
//     invocations an assistant message requested.
//
//  2. Tools: The ToolSpec type represents a tool definition that can be provided to an LLM,
//     and ToolUseBlock/ToolResultBlock represent tool invocations and their results.
//
//  3. Client Interface: The Client interface streams one model turn. The Accumulator folds the
//     stream into a Response carrying the full text, the tool calls and the provider response id.
//
//  4. Middleware: The Middleware interface allows adding cross-cutting concerns like logging
//     without modifying provider implementations.
//
//  5. Errors: The Error type provides provider-neutral error handling with support for
//     rate limits, retryable errors, configuration failures, stream failures and aborts.
//
// Usage Example
//
//	client := llm.WrapWithMiddleware(baseClient, llm.NewLoggingMiddleware(logger))
//
//	stream, err := client.Stream(ctx, &llm.Request{
//	    Model:    "claude-haiku-4-5",
//	    Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hello!")},
//	})
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	acc := llm.NewAccumulator()
//	for stream.Next() {
//	    fmt.Print(acc.Add(stream.Event()))
//	}
//	if err := stream.Err(); err != nil {
//	    return err
//	}
//	resp := acc.Response()
//
// # Extension Points
//
// To add a new LLM provider:
//  1. Implement the Client interface
//  2. Implement Describer so sessions can detect configuration drift
//  3. Translate between provider-specific types and llm package types
//  4. Handle provider-specific errors and translate to llm.Error types
package llm
