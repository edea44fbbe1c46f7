package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aschepis/backscratcher/converse/llm"
)

// RemoteCaller calls a tool implemented outside the process.
type RemoteCaller interface {
	Call(ctx context.Context, toolName string, args map[string]any) (json.RawMessage, error)
}

// HTTPRemoteCaller sends tool calls over HTTP as JSON.
//
//	POST {BaseURL}/tools/{toolName}
//	Body:  { "args": { ... } }
//	Response: any JSON value
type HTTPRemoteCaller struct {
	BaseURL    string
	HTTPClient *http.Client
	AuthToken  string
}

// NewHTTPRemoteCaller creates a caller with a 15 second timeout.
func NewHTTPRemoteCaller(baseURL string) *HTTPRemoteCaller {
	return &HTTPRemoteCaller{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Call implements RemoteCaller.
func (c *HTTPRemoteCaller) Call(ctx context.Context, toolName string, args map[string]any) (json.RawMessage, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("HTTPRemoteCaller: BaseURL is empty")
	}

	body, err := json.Marshal(map[string]any{"args": args})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/tools/%s", c.BaseURL, toolName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // Body close error can be ignored

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTPRemoteCaller: remote error %s", resp.Status)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(respBytes), nil
}

// RemoteTool builds a Definition whose implementation is provided by caller.
// A JSON object response is flattened into the result; a response carrying
// "success": false marks the call as failed.
func RemoteTool(name, description string, schema llm.ToolSchema, caller RemoteCaller) Definition {
	return Definition{
		Name:        name,
		Description: description,
		Schema:      schema,
		Context:     caller,
		Execute: func(ctx context.Context, call Call) (Result, error) {
			raw, err := caller.Call(ctx, name, call.FunctionArgs)
			if err != nil {
				return Result{}, err
			}
			if len(bytes.TrimSpace(raw)) == 0 {
				return OK(nil), nil
			}
			var out any
			if err := json.Unmarshal(raw, &out); err != nil {
				return OK(string(raw)), nil
			}
			if obj, ok := out.(map[string]any); ok {
				success := true
				if s, ok := obj["success"].(bool); ok {
					success = s
					delete(obj, "success")
				}
				return Result{Success: success, Data: obj}, nil
			}
			return OK(out), nil
		},
	}
}
