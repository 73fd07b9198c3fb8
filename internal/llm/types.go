// Package llm provides the model API client used by the agent loop.
package llm

import "context"

// Content is one role-tagged entry in the model request transcript.
// Roles follow the Gemini wire format: "user", "model", or "function".
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a single piece of content. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *InlineData       `json:"inlineData,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// InlineData carries a binary attachment as base64 alongside the text.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

// FunctionCall is a tool invocation request from the model.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse feeds a tool result back to the model.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Declaration describes one callable tool to the model.
type Declaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Response is the unified result of one model call. Exactly one of
// FunctionCall and Text is authoritative: when the model requests a tool
// invocation, FunctionCall is non-nil and takes priority over any text
// returned in the same response.
type Response struct {
	Text         string
	FunctionCall *FunctionCall

	InputTokens  int
	OutputTokens int
}

// Model is the interface the agent loop depends on. Implemented by
// [*GeminiClient]; tests substitute stubs.
type Model interface {
	Generate(ctx context.Context, contents []Content, tools []Declaration) (*Response, error)
}

// TextContent builds a single-part text entry.
func TextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// CallContent echoes the model's function call back into the transcript.
func CallContent(call *FunctionCall) Content {
	return Content{Role: "model", Parts: []Part{{FunctionCall: call}}}
}

// ResultContent wraps a tool result for the next model round-trip.
func ResultContent(name string, result map[string]any) Content {
	return Content{Role: "function", Parts: []Part{{
		FunctionResponse: &FunctionResponse{Name: name, Response: result},
	}}}
}
