package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aschepis/backscratcher/converse/agent"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/rs/zerolog"
)

const helpText = `Commands:
  /context <text>  add text to the system prompt
  /image <path>    attach an image or file to the next message
  /history         print the conversation as JSON
  /restart         clear the conversation and rebuild the model client
  /quit            exit
Anything else is sent to the model. Ctrl-C stops a response in progress.`

type repl struct {
	conv    *agent.Conversation
	in      *bufio.Scanner
	out     io.Writer
	pending []llm.ContentBlock
	logger  zerolog.Logger
}

func newREPL(conv *agent.Conversation, in io.Reader, out io.Writer, logger zerolog.Logger) *repl {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &repl{
		conv:   conv,
		in:     scanner,
		out:    out,
		logger: logger.With().Str("component", "repl").Logger(),
	}
}

func (r *repl) run(ctx context.Context) error {
	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" && len(r.pending) == 0 {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(line); quit {
				return nil
			}
			continue
		}
		r.send(ctx, line)
	}
}

// command handles a slash command and reports whether the REPL should exit.
func (r *repl) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/restart":
		r.conv.Restart()
		r.pending = nil
		fmt.Fprintln(r.out, "Conversation cleared.")
	case "/context":
		if arg == "" {
			fmt.Fprintln(r.out, "Usage: /context <text>")
			break
		}
		r.conv.AddAdditionalContext(arg)
		fmt.Fprintln(r.out, "Context added.")
	case "/history":
		data, err := json.MarshalIndent(r.conv.Messages(), "", "  ")
		if err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			break
		}
		fmt.Fprintln(r.out, string(data))
	case "/image":
		block, err := attachment(arg)
		if err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			break
		}
		r.pending = append(r.pending, block)
		fmt.Fprintf(r.out, "Attached %s (%s).\n", block.Media.Name, block.Media.MediaType)
	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type /help for commands.\n", name)
	}
	return false
}

func (r *repl) send(ctx context.Context, text string) {
	attachments := r.pending
	r.pending = nil

	printed := 0
	onDelta := func(d agent.Delta) {
		// Text is cumulative; print only what is new.
		if len(d.Text) > printed {
			fmt.Fprint(r.out, d.Text[printed:])
			printed = len(d.Text)
		}
		if d.IsCompleted {
			fmt.Fprintln(r.out)
		}
	}

	result, err := r.conv.SendMessage(ctx, text, onDelta, agent.WithAttachments(attachments...))
	switch {
	case llm.IsAbortedError(err):
		fmt.Fprintln(r.out, "\n(stopped)")
	case err != nil:
		r.logger.Warn().Err(err).Msg("SendMessage failed")
		fmt.Fprintf(r.out, "\nError: %v\n", err)
	default:
		r.logger.Debug().
			Int("steps", result.Steps).
			Str("response_id", result.ResponseID).
			Msg("Response complete")
		if result.UIData != nil {
			if data, err := json.Marshal(result.UIData); err == nil {
				fmt.Fprintf(r.out, "[tool output] %s\n", data)
			}
		}
	}
}

// attachment reads path into an image block, or a file block for non-image content.
func attachment(path string) (llm.ContentBlock, error) {
	if path == "" {
		return llm.ContentBlock{}, fmt.Errorf("usage: /image <path>")
	}
	data, err := os.ReadFile(path) //#nosec G304 -- user-selected attachment
	if err != nil {
		return llm.ContentBlock{}, err
	}
	mediaType := http.DetectContentType(data)
	blockType := llm.ContentBlockTypeFile
	if strings.HasPrefix(mediaType, "image/") {
		blockType = llm.ContentBlockTypeImage
	}
	return llm.ContentBlock{
		Type: blockType,
		Media: &llm.MediaBlock{
			MediaType: mediaType,
			Data:      data,
			Name:      filepath.Base(path),
		},
	}, nil
}
