package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"voice-search-assistant/internal/models"
)

type fakeFetcher struct {
	index string
	ids   []string
	err   error
}

func (f *fakeFetcher) GetObjects(ctx context.Context, index string, ids []string) ([]models.Item, error) {
	f.index = index
	f.ids = ids
	if f.err != nil {
		return nil, f.err
	}
	items := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		if id == "missing" {
			continue
		}
		items = append(items, models.Item{ObjectID: id, Title: "title " + id})
	}
	return items, nil
}

func TestTools_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		input   string
		wantIDs []string
		wantOut int
	}{
		{"display items", ToolDisplayItems, `{"objectIDs":["a","b"]}`, []string{"a", "b"}, 2},
		{"display items drops missing", ToolDisplayItems, `{"objectIDs":["a","missing"]}`, []string{"a", "missing"}, 1},
		{"summary dedupes sources", ToolSummaryWithSources, `{"items":[{"text":"x","objectIds":["a","b"]},{"text":"y","objectIds":["b","c"]}]}`, []string{"a", "b", "c"}, 3},
		{"empty input", ToolDisplayItems, ``, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{}
			tools := NewTools(f, "articles")

			raw, err := tools.Resolve(context.Background(), tt.tool, json.RawMessage(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.index != "articles" {
				t.Errorf("expected articles index, got %q", f.index)
			}
			if strings.Join(f.ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("expected ids %v, got %v", tt.wantIDs, f.ids)
			}

			var out ToolOutput
			if err := json.Unmarshal(raw, &out); err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if out.Response == nil || len(out.Response) != tt.wantOut {
				t.Errorf("expected %d items, got %v", tt.wantOut, out.Response)
			}
		})
	}
}

func TestTools_UnknownTool(t *testing.T) {
	tools := NewTools(&fakeFetcher{}, "articles")
	if _, err := tools.Resolve(context.Background(), "weather", nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
}

func TestTools_FetchError(t *testing.T) {
	tools := NewTools(&fakeFetcher{err: errors.New("down")}, "articles")
	if _, err := tools.Resolve(context.Background(), ToolDisplayItems, json.RawMessage(`{"objectIDs":["a"]}`)); err == nil {
		t.Error("expected fetch error")
	}
}

func TestTools_BadInput(t *testing.T) {
	tools := NewTools(&fakeFetcher{}, "articles")
	if _, err := tools.Resolve(context.Background(), ToolDisplayItems, json.RawMessage(`{"objectIDs":`)); err == nil {
		t.Error("expected decode error")
	}
}
