package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsroom/internal/config"
	"newsroom/internal/domain"
	"newsroom/internal/ports"
)

const maxFeedBody = 4 << 20

// Extractor fetches a fixed list of syndication feeds and turns their entries
// into raw items. Feeds are small, so each one is read in full; a failure on
// one feed is logged and skipped without affecting the others.
type Extractor struct {
	feeds  []config.FeedConfig
	client *http.Client
	logger *slog.Logger
}

var _ ports.Extractor = (*Extractor)(nil)

// NewExtractor wires an HTTP client; a nil client gets a 20s timeout default.
func NewExtractor(feeds []config.FeedConfig, client *http.Client, logger *slog.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{feeds: feeds, client: client, logger: logger}
}

// Name identifies the extractor in logs and the run summary.
func (e *Extractor) Name() string { return "feeds" }

// Extract fetches every configured feed and returns entries inside the window.
func (e *Extractor) Extract(ctx context.Context, window domain.RunWindow, _ map[domain.CanonicalID]struct{}) ([]domain.RawItem, error) {
	var items []domain.RawItem

	for _, f := range e.feeds {
		entries, err := e.fetch(ctx, f)
		if err != nil {
			e.logger.Warn("feed skipped", "feed", f.Name, "error", err)
			continue
		}
		for _, entry := range entries {
			if !window.Contains(entry.PublishedAt) {
				continue
			}
			items = append(items, entry)
		}
	}

	return items, nil
}

func (e *Extractor) fetch(ctx context.Context, f config.FeedConfig) ([]domain.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "newsroom/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	return parseFeed(raw, f.Name)
}

// parseFeed handles both RSS 2.0 and Atom documents.
func parseFeed(raw []byte, sourceName string) ([]domain.RawItem, error) {
	var rss rssDoc
	if err := xml.Unmarshal(raw, &rss); err == nil && len(rss.Channel.Items) > 0 {
		return fromRSS(rss, sourceName), nil
	}

	var atom atomDoc
	if err := xml.Unmarshal(raw, &atom); err == nil && len(atom.Entries) > 0 {
		return fromAtom(atom, sourceName), nil
	}

	// An empty-but-valid feed is fine; anything else is a parse failure.
	if err := xml.Unmarshal(raw, &rss); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return nil, nil
}

func fromRSS(doc rssDoc, sourceName string) []domain.RawItem {
	items := make([]domain.RawItem, 0, len(doc.Channel.Items))
	for _, it := range doc.Channel.Items {
		nativeID := it.GUID
		if nativeID == "" {
			nativeID = it.Link
		}
		if nativeID == "" {
			continue
		}
		body := it.Content
		if body == "" {
			body = it.Desc
		}
		items = append(items, domain.RawItem{
			Kind:        domain.KindFeedPost,
			SourceName:  sourceName,
			NativeID:    nativeID,
			Title:       strings.TrimSpace(it.Title),
			URL:         strings.TrimSpace(it.Link),
			PublishedAt: parsePubDate(it.PubDate),
			Text:        htmlToText(body),
			Categories:  it.Categories,
		})
	}
	return items
}

func fromAtom(doc atomDoc, sourceName string) []domain.RawItem {
	items := make([]domain.RawItem, 0, len(doc.Entries))
	for _, en := range doc.Entries {
		nativeID := en.ID
		link := en.link()
		if nativeID == "" {
			nativeID = link
		}
		if nativeID == "" {
			continue
		}
		body := en.Content
		if body == "" {
			body = en.Summary
		}
		published := en.Published
		if published == "" {
			published = en.Updated
		}
		var categories []string
		for _, c := range en.Categories {
			if c.Term != "" {
				categories = append(categories, c.Term)
			}
		}
		items = append(items, domain.RawItem{
			Kind:        domain.KindFeedPost,
			SourceName:  sourceName,
			NativeID:    nativeID,
			Title:       strings.TrimSpace(en.Title),
			URL:         link,
			PublishedAt: parsePubDate(published),
			Text:        htmlToText(body),
			Categories:  categories,
		})
	}
	return items
}

// htmlToText reduces an HTML-encoded entry body to plain text so the
// enrichment prompt is not polluted with markup.
func htmlToText(body string) string {
	body = strings.TrimSpace(body)
	if body == "" || !strings.ContainsRune(body, '<') {
		return body
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	return strings.TrimSpace(text)
}

func parsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"Mon, 2 Jan 2006 15:04:05 -0700",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

type rssDoc struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title      string   `xml:"title"`
	Link       string   `xml:"link"`
	GUID       string   `xml:"guid"`
	PubDate    string   `xml:"pubDate"`
	Desc       string   `xml:"description"`
	Content    string   `xml:"encoded"`
	Categories []string `xml:"category"`
}

type atomDoc struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string `xml:"id"`
	Title      string `xml:"title"`
	Published  string `xml:"published"`
	Updated    string `xml:"updated"`
	Summary    string `xml:"summary"`
	Content    string `xml:"content"`
	Links      []struct {
		Rel  string `xml:"rel,attr"`
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

func (e atomEntry) link() string {
	for _, l := range e.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(e.Links) > 0 {
		return e.Links[0].Href
	}
	return ""
}
