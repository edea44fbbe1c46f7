package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/converse/llm"
)

// validateWorkspacePath ensures the given path is within the workspace directory
// and prevents directory traversal attacks
func validateWorkspacePath(workspacePath, targetPath string) (string, error) {
	workspacePath = filepath.Clean(workspacePath)
	absWorkspace, err := filepath.Abs(workspacePath)
	if err != nil {
		return "", fmt.Errorf("invalid workspace path: %w", err)
	}

	if filepath.IsAbs(targetPath) {
		absTarget := filepath.Clean(targetPath)
		if !strings.HasPrefix(absTarget+string(filepath.Separator), absWorkspace+string(filepath.Separator)) {
			return "", fmt.Errorf("path outside workspace: %s", targetPath)
		}
		return absTarget, nil
	}

	joined := filepath.Join(absWorkspace, targetPath)
	absTarget, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	if !strings.HasPrefix(absTarget+string(filepath.Separator), absWorkspace+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %s", targetPath)
	}
	return absTarget, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

// CurrentTime returns a tool reporting the current time, optionally in a named time zone.
func CurrentTime(now func() time.Time) Definition {
	if now == nil {
		now = time.Now
	}
	return Definition{
		Name:        "get_current_time",
		Description: "Get the current date and time. Optionally pass an IANA time zone such as 'Asia/Tokyo'.",
		Schema: llm.ToolSchema{
			Properties: map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA time zone name (default: local time)",
				},
			},
		},
		Execute: func(ctx context.Context, call Call) (Result, error) {
			t := now()
			if tz := stringArg(call.FunctionArgs, "timezone"); tz != "" {
				loc, err := time.LoadLocation(tz)
				if err != nil {
					return Result{}, fmt.Errorf("unknown time zone %q: %w", tz, err)
				}
				t = t.In(loc)
			}
			return OK(map[string]any{
				"time":     t.Format(time.RFC3339),
				"timezone": t.Location().String(),
				"weekday":  t.Weekday().String(),
			}), nil
		},
	}
}

// ReadFile returns a tool that reads a file inside workspacePath.
func ReadFile(workspacePath string) Definition {
	return Definition{
		Name:        "read_file",
		Description: "Read the contents of a file in the workspace.",
		Schema: llm.ToolSchema{
			Properties: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path relative to the workspace",
				},
				"max_bytes": map[string]any{
					"type":        "integer",
					"description": "Maximum number of bytes to read (default: whole file)",
				},
			},
			Required: []string{"path"},
		},
		Context: workspacePath,
		Execute: func(ctx context.Context, call Call) (Result, error) {
			path := stringArg(call.FunctionArgs, "path")
			validPath, err := validateWorkspacePath(workspacePath, path)
			if err != nil {
				return Result{}, err
			}

			info, err := os.Stat(validPath)
			if err != nil {
				return Result{}, fmt.Errorf("failed to stat file: %w", err)
			}
			if info.IsDir() {
				return Result{}, fmt.Errorf("path is a directory, not a file: %s", path)
			}

			file, err := os.Open(validPath) //#nosec G304 -- validated above
			if err != nil {
				return Result{}, fmt.Errorf("failed to open file: %w", err)
			}
			defer file.Close() //nolint:errcheck // read-only file

			var reader io.Reader = file
			if maxBytes := intArg(call.FunctionArgs, "max_bytes"); maxBytes > 0 {
				reader = io.LimitReader(file, maxBytes)
			}
			content, err := io.ReadAll(reader)
			if err != nil {
				return Result{}, fmt.Errorf("failed to read file: %w", err)
			}

			return OK(map[string]any{
				"content": string(content),
				"size":    len(content),
				"path":    path,
			}), nil
		},
	}
}

// ListDirectory returns a tool that lists a directory inside workspacePath.
// Its UI payload is the plain list of entry names.
func ListDirectory(workspacePath string) Definition {
	return Definition{
		Name:        "list_directory",
		Description: "List files and directories in a workspace directory.",
		Schema: llm.ToolSchema{
			Properties: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Directory relative to the workspace (default: workspace root)",
				},
				"include_hidden": map[string]any{
					"type":        "boolean",
					"description": "Include entries starting with a dot",
				},
			},
		},
		Context: workspacePath,
		Execute: func(ctx context.Context, call Call) (Result, error) {
			path := stringArg(call.FunctionArgs, "path")
			if path == "" {
				path = "."
			}
			includeHidden, _ := call.FunctionArgs["include_hidden"].(bool)

			validPath, err := validateWorkspacePath(workspacePath, path)
			if err != nil {
				return Result{}, err
			}
			dirEntries, err := os.ReadDir(validPath)
			if err != nil {
				return Result{}, fmt.Errorf("failed to read directory: %w", err)
			}

			entries := make([]map[string]any, 0, len(dirEntries))
			for _, entry := range dirEntries {
				name := entry.Name()
				if !includeHidden && strings.HasPrefix(name, ".") {
					continue
				}
				info, err := entry.Info()
				if err != nil {
					continue
				}
				entries = append(entries, map[string]any{
					"path":   filepath.Join(path, name),
					"name":   name,
					"is_dir": entry.IsDir(),
					"size":   info.Size(),
				})
			}
			return OK(map[string]any{
				"path":    path,
				"entries": entries,
				"count":   len(entries),
			}), nil
		},
		UIRenderer: func(ctx context.Context, call Call, result Result) (any, error) {
			data, ok := result.Data.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("unexpected result type %T", result.Data)
			}
			entries, _ := data["entries"].([]map[string]any)
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name, _ := e["name"].(string)
				if isDir, _ := e["is_dir"].(bool); isDir {
					name += "/"
				}
				names = append(names, name)
			}
			return names, nil
		},
	}
}
