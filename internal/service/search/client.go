// Package search talks to the hosted search index and tracks the latest
// result set for an assistant session.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voice-search-assistant/internal/models"
	"voice-search-assistant/internal/observability/metrics"
)

var ErrMissingCredentials = errors.New("search credentials missing")

// Config holds search index connection settings.
type Config struct {
	AppID   string
	APIKey  string
	BaseURL string // defaults to https://{AppID}-dsn.algolia.net
	Timeout time.Duration
}

// ResultSet is the ranked response for one query.
type ResultSet struct {
	Query  string        `json:"query"`
	Items  []models.Item `json:"items"`
	NbHits int           `json:"nbHits"`
}

// IDs returns the object IDs of the result set in rank order.
func (r ResultSet) IDs() []string {
	return models.ObjectIDs(r.Items)
}

// QuerySuggestion is a hit from a query suggestions index.
type QuerySuggestion struct {
	ObjectID string `json:"objectID"`
	Query    string `json:"query"`
}

// Client is a minimal Algolia-compatible REST client.
type Client struct {
	HTTPClient *http.Client
	appID      string
	apiKey     string
	baseURL    string
	metrics    *metrics.Metrics
}

// NewClient creates a search client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s-dsn.algolia.net", cfg.AppID)
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		appID:      cfg.AppID,
		apiKey:     cfg.APIKey,
		baseURL:    base,
		metrics:    metrics.DefaultMetrics,
	}
}

type queryRequest struct {
	Query       string `json:"query"`
	HitsPerPage int    `json:"hitsPerPage,omitempty"`
}

type queryResponse[T any] struct {
	Hits   []T    `json:"hits"`
	NbHits int    `json:"nbHits"`
	Query  string `json:"query"`
}

// Query runs a search against index.
func (c *Client) Query(ctx context.Context, index, query string, hitsPerPage int) (ResultSet, error) {
	start := time.Now()
	var resp queryResponse[models.Item]
	err := c.post(ctx, "/1/indexes/"+url.PathEscape(index)+"/query", queryRequest{Query: query, HitsPerPage: hitsPerPage}, &resp)
	c.metrics.RecordSearchRequest("query", err, time.Since(start).Seconds())
	if err != nil {
		return ResultSet{}, err
	}
	// The echoed query is authoritative only when present.
	q := resp.Query
	if q == "" {
		q = query
	}
	return ResultSet{Query: q, Items: resp.Hits, NbHits: resp.NbHits}, nil
}

// Suggest runs a query against a query suggestions index.
func (c *Client) Suggest(ctx context.Context, index, query string, hitsPerPage int) ([]QuerySuggestion, error) {
	start := time.Now()
	var resp queryResponse[QuerySuggestion]
	err := c.post(ctx, "/1/indexes/"+url.PathEscape(index)+"/query", queryRequest{Query: query, HitsPerPage: hitsPerPage}, &resp)
	c.metrics.RecordSearchRequest("suggest", err, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

type objectRequest struct {
	IndexName string `json:"indexName"`
	ObjectID  string `json:"objectID"`
}

type objectsResponse struct {
	Results []json.RawMessage `json:"results"`
}

// GetObjects fetches records by ID. Results follow the order of ids; IDs
// that do not exist in the index are dropped.
func (c *Client) GetObjects(ctx context.Context, index string, ids []string) ([]models.Item, error) {
	if len(ids) == 0 {
		return []models.Item{}, nil
	}

	start := time.Now()
	reqs := make([]objectRequest, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, objectRequest{IndexName: index, ObjectID: id})
	}

	var resp objectsResponse
	err := c.post(ctx, "/1/indexes/*/objects", map[string]any{"requests": reqs}, &resp)
	c.metrics.RecordSearchRequest("get_objects", err, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Item, len(resp.Results))
	for _, raw := range resp.Results {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var it models.Item
		if err := json.Unmarshal(raw, &it); err != nil {
			return nil, fmt.Errorf("decode object: %w", err)
		}
		byID[it.ObjectID] = it
	}

	items := make([]models.Item, 0, len(byID))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			items = append(items, it)
			delete(byID, id)
		}
	}
	return items, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if c.appID == "" || c.apiKey == "" {
		return ErrMissingCredentials
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("X-Algolia-Application-Id", c.appID)
	req.Header.Set("X-Algolia-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("search error: status=%d body=%s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}
