package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newsroom/internal/config"
	"newsroom/internal/domain"
	"newsroom/internal/ports"
	"newsroom/internal/scanner"
)

// ChannelExtractor pages each tracked channel's uploads playlist, newest
// first, through the early-stop scanner.
type ChannelExtractor struct {
	client   *Client
	channels []config.ChannelConfig
	pageSize int
	maxPages int
	logger   *slog.Logger
}

var _ ports.Extractor = (*ChannelExtractor)(nil)

// NewChannelExtractor builds the channel-upload extractor.
func NewChannelExtractor(client *Client, channels []config.ChannelConfig, cfg config.YouTubeConfig, logger *slog.Logger) *ChannelExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelExtractor{
		client:   client,
		channels: channels,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		logger:   logger,
	}
}

func (e *ChannelExtractor) Name() string { return "channels" }

// Extract monitors every enabled channel. A channel that cannot be resolved
// or fetched is logged and skipped; the others still run.
func (e *ChannelExtractor) Extract(ctx context.Context, window domain.RunWindow, known map[domain.CanonicalID]struct{}) ([]domain.RawItem, error) {
	var items []domain.RawItem

	for _, ch := range e.channels {
		if !ch.IsEnabled() {
			continue
		}

		playlistID, err := e.client.ResolveUploadsPlaylist(ctx, ch.Handle, ch.ChannelID)
		if err != nil {
			e.logger.Warn("channel skipped", "channel", ch.Name, "error", err)
			continue
		}

		sc := scanner.NewEarlyStop(known, e.maxPages, e.logger.With("channel", ch.Name))
		found, err := sc.Scan(ctx, window, func(ctx context.Context, pageToken string) ([]domain.RawItem, string, error) {
			page, err := e.client.UploadsPage(ctx, playlistID, pageToken, e.pageSize)
			if err != nil {
				return nil, "", err
			}
			converted := make([]domain.RawItem, 0, len(page.Items))
			for _, it := range page.Items {
				converted = append(converted, videoItem(domain.KindChannelUpload, ch.Name, it.ContentDetails.VideoID, it.Snippet, ""))
			}
			return converted, page.NextPageToken, nil
		})
		if err != nil {
			e.logger.Warn("channel scan failed", "channel", ch.Name, "error", err)
		}
		items = append(items, found...)
	}

	return e.attachDurations(ctx, items), nil
}

func (e *ChannelExtractor) attachDurations(ctx context.Context, items []domain.RawItem) []domain.RawItem {
	return attachDurations(ctx, e.client, items, e.logger)
}

// PersonExtractor searches the video platform for interview appearances of
// each tracked person within the run window.
type PersonExtractor struct {
	client           *Client
	people           []config.PersonConfig
	pageSize         int
	maxPages         int
	maxPeoplePerRun  int
	resultsPerPerson int
	logger           *slog.Logger
}

var _ ports.Extractor = (*PersonExtractor)(nil)

// NewPersonExtractor builds the person-appearance extractor.
func NewPersonExtractor(client *Client, people []config.PersonConfig, cfg config.YouTubeConfig, logger *slog.Logger) *PersonExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersonExtractor{
		client:           client,
		people:           people,
		pageSize:         cfg.PageSize,
		maxPages:         cfg.MaxPages,
		maxPeoplePerRun:  cfg.MaxPeoplePerRun,
		resultsPerPerson: cfg.ResultsPerPerson,
		logger:           logger,
	}
}

func (e *PersonExtractor) Name() string { return "people" }

// Extract searches for the first maxPeoplePerRun tracked people, bounding API
// quota per run; the rest are picked up by later runs once their content is
// old enough to early-stop cheaply.
func (e *PersonExtractor) Extract(ctx context.Context, window domain.RunWindow, known map[domain.CanonicalID]struct{}) ([]domain.RawItem, error) {
	people := e.people
	if e.maxPeoplePerRun > 0 && len(people) > e.maxPeoplePerRun {
		people = people[:e.maxPeoplePerRun]
	}

	var items []domain.RawItem
	for _, person := range people {
		query := fmt.Sprintf("%q interview -shorts", person.Name)
		sc := scanner.NewEarlyStop(known, e.maxPages, e.logger.With("person", person.Name))
		found, err := sc.Scan(ctx, window, func(ctx context.Context, pageToken string) ([]domain.RawItem, string, error) {
			page, err := e.client.SearchPage(ctx, query, window.Since, pageToken, e.pageSize)
			if err != nil {
				return nil, "", err
			}
			converted := make([]domain.RawItem, 0, len(page.Items))
			for _, it := range page.Items {
				converted = append(converted, videoItem(domain.KindPersonAppearance, person.Name, it.ID.VideoID, it.Snippet, person.Name))
			}
			return converted, page.NextPageToken, nil
		})
		if err != nil {
			e.logger.Warn("person search failed", "person", person.Name, "error", err)
		}
		// Search relevance is loose; keep only results that actually name
		// the person (or a known alias) in the title or description.
		matched := found[:0]
		for _, item := range found {
			if mentionsPerson(item, person) {
				matched = append(matched, item)
			} else {
				e.logger.Debug("search result without a name match", "person", person.Name, "video", item.NativeID)
			}
		}
		if e.resultsPerPerson > 0 && len(matched) > e.resultsPerPerson {
			matched = matched[:e.resultsPerPerson]
		}
		items = append(items, matched...)
	}

	return attachDurations(ctx, e.client, items, e.logger), nil
}

func mentionsPerson(item domain.RawItem, person config.PersonConfig) bool {
	haystack := strings.ToLower(item.Title + " " + item.Text)
	if strings.Contains(haystack, strings.ToLower(person.Name)) {
		return true
	}
	for _, alias := range person.Aliases {
		if alias != "" && strings.Contains(haystack, strings.ToLower(alias)) {
			return true
		}
	}
	return false
}

func videoItem(kind domain.SourceKind, sourceName, videoID string, sn snippet, person string) domain.RawItem {
	publishedAt, err := time.Parse(time.RFC3339, sn.PublishedAt)
	if err != nil {
		publishedAt = time.Time{}
	}
	item := domain.RawItem{
		Kind:        kind,
		SourceName:  sourceName,
		NativeID:    videoID,
		Title:       sn.Title,
		URL:         "https://www.youtube.com/watch?v=" + videoID,
		PublishedAt: publishedAt.UTC(),
		Text:        sn.Description + "\n\nChannel: " + sn.ChannelTitle,
		Channel:     sn.ChannelTitle,
	}
	if kind == domain.KindPersonAppearance && person != "" {
		item.People = []string{person}
	}
	return item
}

// attachDurations looks up video lengths so the classifier can drop
// short-form content. A lookup failure leaves durations at zero rather than
// failing extraction.
func attachDurations(ctx context.Context, client *Client, items []domain.RawItem, logger *slog.Logger) []domain.RawItem {
	if len(items) == 0 {
		return items
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.NativeID)
	}
	durations, err := client.VideoDurations(ctx, ids)
	if err != nil {
		logger.Warn("video duration lookup failed", "error", err)
		return items
	}
	out := make([]domain.RawItem, len(items))
	for i, it := range items {
		it.Duration = durations[it.NativeID]
		out[i] = it
	}
	return out
}
