package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"voice-search-assistant/internal/idset"
	"voice-search-assistant/internal/models"
)

// Tool names the agent may call.
const (
	ToolDisplayItems       = "display-items"
	ToolSummaryWithSources = "summary-with-sources"
)

var ErrUnknownTool = errors.New("unknown tool")

// ObjectFetcher loads index records by ID.
type ObjectFetcher interface {
	GetObjects(ctx context.Context, index string, ids []string) ([]models.Item, error)
}

// ToolResolver produces the output of a client-side tool call.
type ToolResolver interface {
	Resolve(ctx context.Context, toolName string, input json.RawMessage) (json.RawMessage, error)
}

// DisplayItemsInput is the input of the display-items tool.
type DisplayItemsInput struct {
	ObjectIDs   []string `json:"objectIDs"`
	Explanation string   `json:"explanation,omitempty"`
	Title       string   `json:"title,omitempty"`
}

// SummaryWithSourcesInput is the input of the summary-with-sources tool.
type SummaryWithSourcesInput struct {
	Items []struct {
		Text      string   `json:"text"`
		ObjectIDs []string `json:"objectIds"`
	} `json:"items"`
}

// ToolOutput is the payload attached to a resolved tool call.
type ToolOutput struct {
	Response []models.Item `json:"response"`
}

// Tools resolves agent tool calls against one index.
type Tools struct {
	fetcher ObjectFetcher
	index   string
}

// NewTools creates a resolver reading records from index.
func NewTools(fetcher ObjectFetcher, index string) *Tools {
	return &Tools{fetcher: fetcher, index: index}
}

// Resolve runs the named tool.
func (t *Tools) Resolve(ctx context.Context, toolName string, input json.RawMessage) (json.RawMessage, error) {
	var ids []string

	switch toolName {
	case ToolDisplayItems:
		var in DisplayItemsInput
		if err := decodeInput(input, &in); err != nil {
			return nil, err
		}
		ids = in.ObjectIDs

	case ToolSummaryWithSources:
		var in SummaryWithSourcesInput
		if err := decodeInput(input, &in); err != nil {
			return nil, err
		}
		for _, item := range in.Items {
			ids = append(ids, item.ObjectIDs...)
		}
		ids = idset.Dedupe(ids)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, toolName)
	}

	items, err := t.fetcher.GetObjects(ctx, t.index, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch objects: %w", toolName, err)
	}
	if items == nil {
		items = []models.Item{}
	}
	return json.Marshal(ToolOutput{Response: items})
}

func decodeInput(input json.RawMessage, v any) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("decode tool input: %w", err)
	}
	return nil
}
