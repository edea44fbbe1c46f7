package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/converse/llm"
	"github.com/samber/lo"
	"google.golang.org/genai"
)

// ToContents converts a conversation to Gemini contents. System messages are
// skipped; instructions travel in the SystemInstruction config. Tool results
// become function responses on a user turn, and consecutive tool messages are
// merged into one turn.
func ToContents(msgs []llm.Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(msgs))
	var prevRole llm.MessageRole
	for _, msg := range msgs {
		if msg.Role == llm.RoleSystem {
			continue
		}
		content, err := ToContent(msg)
		if err != nil {
			return nil, err
		}
		if content == nil {
			continue
		}
		if msg.Role == llm.RoleTool && prevRole == llm.RoleTool && len(contents) > 0 {
			last := contents[len(contents)-1]
			last.Parts = append(last.Parts, content.Parts...)
			continue
		}
		contents = append(contents, content)
		prevRole = msg.Role
	}
	return contents, nil
}

// ToContent converts a single message. It returns nil when nothing in the
// message can be represented.
func ToContent(msg llm.Message) (*genai.Content, error) {
	role := genai.RoleUser
	if msg.Role == llm.RoleAssistant {
		role = genai.RoleModel
	}
	content := &genai.Content{Role: role}

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			if block.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: block.Text})
			}
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   block.ToolUse.ID,
					Name: block.ToolUse.Name,
					Args: block.ToolUse.Input,
				},
			})
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult == nil {
				continue
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       block.ToolResult.ID,
					Name:     block.ToolResult.Name,
					Response: toolResponse(block.ToolResult),
				},
			})
		case llm.ContentBlockTypeImage, llm.ContentBlockTypeFile:
			if block.Media == nil {
				continue
			}
			if block.Type == llm.ContentBlockTypeFile &&
				block.Media.MediaType != "application/pdf" && !strings.HasPrefix(block.Media.MediaType, "text/") {
				return nil, fmt.Errorf("unsupported file type %q", block.Media.MediaType)
			}
			if block.Media.URL != "" {
				content.Parts = append(content.Parts, &genai.Part{
					FileData: &genai.FileData{FileURI: block.Media.URL, MIMEType: block.Media.MediaType},
				})
				continue
			}
			content.Parts = append(content.Parts, &genai.Part{
				InlineData: &genai.Blob{Data: block.Media.Data, MIMEType: block.Media.MediaType},
			})
		}
	}

	if len(content.Parts) == 0 {
		return nil, nil
	}
	return content, nil
}

// toolResponse decodes a JSON object result so the model sees structured
// output. Anything else is wrapped under "output".
func toolResponse(result *llm.ToolResultBlock) map[string]any {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(result.Content), &decoded); err == nil && decoded != nil {
		if result.IsError {
			return map[string]any{"error": decoded}
		}
		return decoded
	}
	if result.IsError {
		return map[string]any{"error": result.Content}
	}
	return map[string]any{"output": result.Content}
}

// ToTools converts tool specs to a single Gemini tool holding all function declarations.
func ToTools(specs []llm.ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := lo.Map(specs, func(spec llm.ToolSpec, _ int) *genai.FunctionDeclaration {
		return &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schemaToGenai(normalizeSchema(spec.Schema.Map())),
		}
	})
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// unsupportedSchemaFields are JSON-schema keywords the Gemini API rejects.
var unsupportedSchemaFields = []string{
	"$schema", "format", "exclusiveMinimum", "exclusiveMaximum", "minimum", "maximum",
	"minLength", "maxLength", "minItems", "maxItems", "uniqueItems", "pattern",
	"default", "examples", "const", "additionalProperties", "title",
}

// normalizeSchema returns a copy of schema without keywords Gemini does not accept.
func normalizeSchema(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		if lo.Contains(unsupportedSchemaFields, k) {
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			if k == "properties" {
				props := make(map[string]any, len(val))
				for name, prop := range val {
					if propMap, ok := prop.(map[string]any); ok {
						props[name] = normalizeSchema(propMap)
					} else {
						props[name] = prop
					}
				}
				out[k] = props
				continue
			}
			out[k] = normalizeSchema(val)
		default:
			out[k] = v
		}
	}
	return out
}

func schemaToGenai(schema map[string]any) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeString}
	}

	genSchema := &genai.Schema{
		Type:        schemaType(schema),
		Description: stringField(schema, "description"),
		Required:    requiredFields(schema),
	}
	if enum, ok := schema["enum"].([]any); ok {
		genSchema.Enum = lo.FilterMap(enum, func(v any, _ int) (string, bool) {
			s, ok := v.(string)
			return s, ok
		})
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		genSchema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				genSchema.Properties[name] = schemaToGenai(propMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		genSchema.Items = schemaToGenai(items)
	}
	return genSchema
}

func schemaType(schema map[string]any) genai.Type {
	t, _ := schema["type"].(string)
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func requiredFields(schema map[string]any) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []any:
		return lo.FilterMap(required, func(r any, _ int) (string, bool) {
			s, ok := r.(string)
			return s, ok
		})
	}
	return nil
}

func stringField(schema map[string]any, key string) string {
	v, _ := schema[key].(string)
	return v
}
