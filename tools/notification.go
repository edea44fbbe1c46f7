package tools

import (
	"context"
	"fmt"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/gen2brain/beeep"
)

const defaultNotificationTitle = "Converse"

// NotifyFunc shows a notification to the user.
type NotifyFunc func(title, message string) error

// DesktopNotify sends a desktop notification through the platform's
// notification center.
func DesktopNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Notification returns a tool that lets the model notify the user. A nil
// notify uses DesktopNotify.
func Notification(notify NotifyFunc) Definition {
	if notify == nil {
		notify = DesktopNotify
	}
	return Definition{
		Name:        "send_user_notification",
		Description: "Show a desktop notification to the user. Use it for results the user should not miss.",
		Schema: llm.ToolSchema{
			Properties: map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Notification body",
				},
				"title": map[string]any{
					"type":        "string",
					"description": "Notification title (default: Converse)",
				},
				"requires_response": map[string]any{
					"type":        "boolean",
					"description": "Mark the notification as waiting for the user's reply",
				},
			},
			Required: []string{"message"},
		},
		Execute: func(ctx context.Context, call Call) (Result, error) {
			message := stringArg(call.FunctionArgs, "message")
			if message == "" {
				return Result{}, fmt.Errorf("message cannot be empty")
			}
			title := stringArg(call.FunctionArgs, "title")
			if title == "" {
				title = defaultNotificationTitle
			}
			requiresResponse, _ := call.FunctionArgs["requires_response"].(bool)

			body := message
			if requiresResponse {
				body += " (Response required)"
			}
			if err := notify(title, body); err != nil {
				return Result{}, fmt.Errorf("failed to send notification: %w", err)
			}
			return OK(map[string]any{
				"title":             title,
				"message":           message,
				"requires_response": requiresResponse,
				"notification_sent": true,
			}), nil
		},
	}
}
