// Package models defines the data structures shared across the assistant.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Tool part states, as emitted by the agent stream.
const (
	ToolStateInputStreaming  = "input-streaming"
	ToolStateInputAvailable  = "input-available"
	ToolStateOutputAvailable = "output-available"
	ToolStateOutputError     = "output-error"
)

// PartTypeText is the type of a plain text part.
const PartTypeText = "text"

const toolPartPrefix = "tool-"

// Part is one element of a UI message: either text or a tool invocation.
// Tool parts are typed "tool-<name>".
type Part struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	State      string          `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// ToolPartType returns the part type for a tool name.
func ToolPartType(toolName string) string {
	return toolPartPrefix + toolName
}

// IsTool reports whether the part is a tool invocation.
func (p Part) IsTool() bool {
	return strings.HasPrefix(p.Type, toolPartPrefix)
}

// ToolName returns the tool name of a tool part, or "" for other parts.
func (p Part) ToolName() string {
	if !p.IsTool() {
		return ""
	}
	return strings.TrimPrefix(p.Type, toolPartPrefix)
}

// Message is an entry of the append-only chat log.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"createdAt"`
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartTypeText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ToolOutput is a completed tool invocation as cached for replay.
type ToolOutput struct {
	ToolName   string          `json:"toolName"`
	ToolCallID string          `json:"toolCallId"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output"`
}

// Part renders the tool output as an output-available message part.
func (o ToolOutput) Part() Part {
	return Part{
		Type:       ToolPartType(o.ToolName),
		ToolCallID: o.ToolCallID,
		State:      ToolStateOutputAvailable,
		Input:      o.Input,
		Output:     o.Output,
	}
}
