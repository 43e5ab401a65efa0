package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsroom/internal/config"
	"newsroom/internal/domain"
	"newsroom/internal/ports"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	notionVersion  = "2022-06-28"
	maxRichText    = 2000
	maxTags        = 10
)

// Store upserts enriched items into a Notion database keyed by the
// CanonicalId property.
type Store struct {
	token      string
	databaseID string
	baseURL    string
	client     *http.Client
}

var _ ports.ContentStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithBaseURL overrides the API base URL (useful for testing).
func WithBaseURL(u string) Option {
	return func(s *Store) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// NewStore builds the destination store client.
func NewStore(cfg config.NotionConfig, opts ...Option) *Store {
	s := &Store{
		token:      cfg.Token,
		databaseID: formatDatabaseID(cfg.DatabaseID),
		baseURL:    defaultBaseURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// formatDatabaseID inserts dashes into a bare 32-char database ID.
func formatDatabaseID(id string) string {
	if len(id) == 32 && !strings.Contains(id, "-") {
		return fmt.Sprintf("%s-%s-%s-%s-%s", id[:8], id[8:12], id[12:16], id[16:20], id[20:])
	}
	return id
}

// Upsert creates the page for the item's canonical ID, or updates it when it
// already exists. Re-running with the same item leaves one record.
func (s *Store) Upsert(ctx context.Context, item domain.EnrichedItem) error {
	pageID, err := s.findPage(ctx, item.CanonicalID())
	if err != nil {
		return err
	}

	properties := s.buildProperties(item)

	if pageID != "" {
		body := map[string]any{"properties": properties}
		return s.do(ctx, http.MethodPatch, "/pages/"+pageID, body, nil)
	}

	body := map[string]any{
		"parent":     map[string]any{"database_id": s.databaseID},
		"properties": properties,
	}
	return s.do(ctx, http.MethodPost, "/pages", body, nil)
}

// Exists reports whether a page with the canonical ID is present.
func (s *Store) Exists(ctx context.Context, id domain.CanonicalID) (bool, error) {
	pageID, err := s.findPage(ctx, id)
	if err != nil {
		return false, err
	}
	return pageID != "", nil
}

// ListCanonicalIDs pages through the whole database and collects every
// stored canonical ID. Used to seed the known-ID index.
func (s *Store) ListCanonicalIDs(ctx context.Context) ([]domain.CanonicalID, error) {
	var ids []domain.CanonicalID
	cursor := ""

	for {
		body := map[string]any{"page_size": 100}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var resp queryResponse
		if err := s.do(ctx, http.MethodPost, "/databases/"+s.databaseID+"/query", body, &resp); err != nil {
			return nil, err
		}

		for _, page := range resp.Results {
			if id := page.canonicalID(); id != "" {
				ids = append(ids, domain.CanonicalID(id))
			}
		}

		if !resp.HasMore || resp.NextCursor == "" {
			return ids, nil
		}
		cursor = resp.NextCursor
	}
}

func (s *Store) findPage(ctx context.Context, id domain.CanonicalID) (string, error) {
	body := map[string]any{
		"filter": map[string]any{
			"property":  "CanonicalId",
			"rich_text": map[string]any{"equals": string(id)},
		},
	}

	var resp queryResponse
	if err := s.do(ctx, http.MethodPost, "/databases/"+s.databaseID+"/query", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return resp.Results[0].ID, nil
}

func (s *Store) buildProperties(item domain.EnrichedItem) map[string]any {
	itemType := "Article"
	if item.IsVideo() {
		itemType = "YouTube"
	}

	properties := map[string]any{
		"Title":       map[string]any{"title": []any{textContent(item.Title)}},
		"URL":         map[string]any{"url": item.URL},
		"Source":      map[string]any{"select": map[string]any{"name": item.SourceName}},
		"Type":        map[string]any{"select": map[string]any{"name": itemType}},
		"PublishedAt": map[string]any{"date": map[string]any{"start": item.PublishedAt.Format(time.RFC3339)}},
		"IngestedAt":  map[string]any{"date": map[string]any{"start": time.Now().UTC().Format(time.RFC3339)}},
		"Importance":  map[string]any{"number": item.Importance},
		"CanonicalId": map[string]any{"rich_text": []any{textContent(string(item.CanonicalID()))}},
	}

	if item.Summary != "" {
		properties["Summary"] = map[string]any{"rich_text": []any{textContent(item.Summary)}}
	}
	if item.ActionableInsight != "" {
		properties["ActionableInsight"] = map[string]any{"rich_text": []any{textContent(item.ActionableInsight)}}
	}
	if len(item.Tags) > 0 {
		tags := item.Tags
		if len(tags) > maxTags {
			tags = tags[:maxTags]
		}
		opts := make([]any, 0, len(tags))
		for _, t := range tags {
			// Multi-select option names cannot contain commas.
			opts = append(opts, map[string]any{"name": strings.ReplaceAll(t, ",", "")})
		}
		properties["Tags"] = map[string]any{"multi_select": opts}
	}
	if len(item.People) > 0 {
		opts := make([]any, 0, len(item.People))
		for _, p := range item.People {
			opts = append(opts, map[string]any{"name": p})
		}
		properties["PeopleMatches"] = map[string]any{"multi_select": opts}
	}
	if item.IsVideo() {
		properties["VideoId"] = map[string]any{"rich_text": []any{textContent(item.NativeID)}}
		if item.Channel != "" {
			properties["Channel"] = map[string]any{"rich_text": []any{textContent(item.Channel)}}
		}
	}

	return properties
}

func textContent(s string) map[string]any {
	if len(s) > maxRichText {
		s = s[:maxRichText]
	}
	return map[string]any{"text": map[string]any{"content": s}}
}

func (s *Store) do(ctx context.Context, method, path string, body any, v any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notion %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type queryResponse struct {
	Results    []queryPage `json:"results"`
	HasMore    bool        `json:"has_more"`
	NextCursor string      `json:"next_cursor"`
}

type queryPage struct {
	ID         string `json:"id"`
	Properties struct {
		CanonicalID struct {
			RichText []struct {
				PlainText string `json:"plain_text"`
			} `json:"rich_text"`
		} `json:"CanonicalId"`
	} `json:"properties"`
}

func (p queryPage) canonicalID() string {
	if len(p.Properties.CanonicalID.RichText) == 0 {
		return ""
	}
	return p.Properties.CanonicalID.RichText[0].PlainText
}
