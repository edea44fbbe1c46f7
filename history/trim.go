package history

import (
	"github.com/aschepis/backscratcher/converse/llm"
)

// SplitSystem separates a leading system message from the rest of the history.
func SplitSystem(messages []llm.Message) (*llm.Message, []llm.Message) {
	if len(messages) > 0 && messages[0].Role == llm.RoleSystem {
		return &messages[0], messages[1:]
	}
	return nil, messages
}

// Cost returns the token cost of a request built from messages, instructions and tools.
// A leading system message stands in for instructions.
func Cost(messages []llm.Message, instructions string, tools []llm.ToolSpec, counter TokenCounter) int {
	if counter == nil {
		counter = DefaultCounter
	}
	system, rest := SplitSystem(messages)
	total := fixedCost(system, instructions, tools, counter)
	for _, m := range rest {
		total += counter.CountTokens(m)
	}
	return total
}

func fixedCost(system *llm.Message, instructions string, tools []llm.ToolSpec, counter TokenCounter) int {
	total := 0
	switch {
	case system != nil:
		total += counter.CountTokens(*system)
	case instructions != "":
		total += counter.CountTokens(llm.NewTextMessage(llm.RoleSystem, instructions))
	}
	for _, spec := range tools {
		total += counter.CountTokens(SchemaMessage(spec))
	}
	return total
}

// Trim removes the oldest messages until the system message, the tool schemas and the
// remaining history fit in maxTokens. The leading system message is never removed, and a
// single message larger than the whole budget is removed like any other. Tool results
// whose originating assistant turn was trimmed away are dropped with it. A maxTokens of
// zero or less disables trimming. When nothing needs to go the input slice is returned as is.
func Trim(messages []llm.Message, instructions string, tools []llm.ToolSpec, maxTokens int, counter TokenCounter) []llm.Message {
	if maxTokens <= 0 || len(messages) == 0 {
		return messages
	}
	if counter == nil {
		counter = DefaultCounter
	}

	system, rest := SplitSystem(messages)
	total := fixedCost(system, instructions, tools, counter)
	costs := make([]int, len(rest))
	for i, m := range rest {
		costs[i] = counter.CountTokens(m)
		total += costs[i]
	}
	if total <= maxTokens {
		return messages
	}

	drop := 0
	for drop < len(rest) && total > maxTokens {
		total -= costs[drop]
		drop++
	}
	for drop < len(rest) && rest[drop].Role == llm.RoleTool {
		drop++
	}

	out := make([]llm.Message, 0, len(rest)-drop+1)
	if system != nil {
		out = append(out, *system)
	}
	return append(out, rest[drop:]...)
}
