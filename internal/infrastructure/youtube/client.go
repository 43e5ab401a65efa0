package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://www.googleapis.com"

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// Client is a YouTube Data API v3 client authenticated with an API key.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPClient
}

// NewClient creates a client with the given API key.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveUploadsPlaylist resolves a channel, by handle (with the @ prefix) or
// by channel ID, to its uploads playlist ID.
func (c *Client) ResolveUploadsPlaylist(ctx context.Context, handle, channelID string) (string, error) {
	params := url.Values{"part": {"contentDetails"}}
	switch {
	case channelID != "":
		params.Set("id", channelID)
	case handle != "":
		params.Set("forHandle", handle)
	default:
		return "", fmt.Errorf("channel needs a handle or an id")
	}

	var resp channelsResponse
	if err := c.get(ctx, "/youtube/v3/channels", params, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("channel not found")
	}
	uploads := resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
	if uploads == "" {
		return "", fmt.Errorf("channel has no uploads playlist")
	}
	return uploads, nil
}

// UploadsPage retrieves one page of a channel's uploads playlist,
// newest first.
func (c *Client) UploadsPage(ctx context.Context, playlistID, pageToken string, pageSize int) (*playlistItemsResponse, error) {
	params := url.Values{
		"part":       {"snippet,contentDetails"},
		"playlistId": {playlistID},
		"maxResults": {strconv.Itoa(pageSize)},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp playlistItemsResponse
	if err := c.get(ctx, "/youtube/v3/playlistItems", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchPage retrieves one page of video search results, newest first,
// restricted to publishedAfter when it is non-zero.
func (c *Client) SearchPage(ctx context.Context, query string, publishedAfter time.Time, pageToken string, pageSize int) (*searchResponse, error) {
	params := url.Values{
		"part":              {"snippet"},
		"q":                 {query},
		"type":              {"video"},
		"order":             {"date"},
		"relevanceLanguage": {"en"},
		"maxResults":        {strconv.Itoa(pageSize)},
	}
	if !publishedAfter.IsZero() {
		params.Set("publishedAfter", publishedAfter.UTC().Format(time.RFC3339))
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp searchResponse
	if err := c.get(ctx, "/youtube/v3/search", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoDurations returns the duration of each requested video, keyed by
// video ID. Videos the API does not return are absent from the map.
func (c *Client) VideoDurations(ctx context.Context, ids []string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration, len(ids))
	// videos.list accepts at most 50 ids per call.
	for start := 0; start < len(ids); start += 50 {
		end := min(start+50, len(ids))
		params := url.Values{
			"part": {"contentDetails"},
			"id":   {strings.Join(ids[start:end], ",")},
		}
		var resp videosResponse
		if err := c.get(ctx, "/youtube/v3/videos", params, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			if d, ok := parseISODuration(item.ContentDetails.Duration); ok {
				out[item.ID] = d
			}
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, v any) error {
	params.Set("key", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("youtube api %d: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("youtube api returned %s", resp.Status)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

var isoDurationExpr = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration parses the API's ISO-8601 durations, e.g. "PT1H2M3S".
func parseISODuration(s string) (time.Duration, bool) {
	m := isoDurationExpr.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	var d time.Duration
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		d += time.Duration(h) * time.Hour
	}
	if m[2] != "" {
		mins, _ := strconv.Atoi(m[2])
		d += time.Duration(mins) * time.Minute
	}
	if m[3] != "" {
		secs, _ := strconv.Atoi(m[3])
		d += time.Duration(secs) * time.Second
	}
	return d, true
}
