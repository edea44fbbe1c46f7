package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aschepis/backscratcher/converse/agent"
	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/aschepis/backscratcher/converse/provider"
	"github.com/rs/zerolog"
)

func runREPL(t *testing.T, input string) (string, *agent.Conversation) {
	t.Helper()
	conv := agent.NewConversation(provider.NewSession(zerolog.Nop()), zerolog.Nop())
	var out bytes.Buffer
	r := newREPL(conv, strings.NewReader(input), &out, zerolog.Nop())
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return out.String(), conv
}

func TestREPLCommands(t *testing.T) {
	out, conv := runREPL(t, "/context You are terse.\n/history\n/bogus\n/quit\nnever sent\n")

	msgs := conv.Messages()
	if len(msgs) != 1 || msgs[0].Role != llm.RoleSystem || msgs[0].Text() != "You are terse." {
		t.Fatalf("Expected one system message, got %+v", msgs)
	}
	for _, want := range []string{"Context added.", `"role": "system"`, "Unknown command /bogus"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestREPLRestartClearsHistory(t *testing.T) {
	_, conv := runREPL(t, "/context extra\n/restart\n")
	if msgs := conv.Messages(); len(msgs) != 0 {
		t.Errorf("Expected empty history after restart, got %d messages", len(msgs))
	}
}

func TestREPLReportsSendErrors(t *testing.T) {
	out, conv := runREPL(t, "hello\n")
	if !strings.Contains(out, "Error:") {
		t.Errorf("Expected an error for an unconfigured session, got:\n%s", out)
	}
	if len(conv.Messages()) != 0 {
		t.Error("Expected history to be untouched by a configuration error")
	}
}

func TestAttachment(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "dot.png")
	// PNG signature is enough for content sniffing.
	if err := os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR"), 0o600); err != nil {
		t.Fatal(err)
	}
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("plain notes"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path      string
		wantType  llm.ContentBlockType
		wantMedia string
	}{
		{png, llm.ContentBlockTypeImage, "image/png"},
		{txt, llm.ContentBlockTypeFile, "text/plain; charset=utf-8"},
	}
	for _, tt := range tests {
		block, err := attachment(tt.path)
		if err != nil {
			t.Fatalf("attachment(%s) failed: %v", tt.path, err)
		}
		if block.Type != tt.wantType || block.Media.MediaType != tt.wantMedia {
			t.Errorf("attachment(%s) = %s %s, want %s %s", tt.path, block.Type, block.Media.MediaType, tt.wantType, tt.wantMedia)
		}
	}

	if _, err := attachment(""); err == nil {
		t.Error("Expected error for empty path")
	}
}
