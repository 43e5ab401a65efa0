package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// SourceKind identifies the class of source an item was ingested from.
type SourceKind string

const (
	KindFeedPost         SourceKind = "feed-post"
	KindChannelUpload    SourceKind = "channel-upload"
	KindPersonAppearance SourceKind = "person-appearance"
)

// CanonicalID is the cross-source identifier used for dedup and upsert keying.
type CanonicalID string

// Resolve derives the canonical identifier for an item from its source kind
// and native identifier. It is deterministic and never depends on title or
// URL, which may change upstream. Videos discovered via a channel's upload
// list and via person search share the "yt:" namespace so the same video
// collapses to one record regardless of how it was found.
func Resolve(kind SourceKind, nativeID string) CanonicalID {
	switch kind {
	case KindChannelUpload, KindPersonAppearance:
		return CanonicalID("yt:" + nativeID)
	default:
		sum := sha1.Sum([]byte(nativeID))
		return CanonicalID("rss:" + hex.EncodeToString(sum[:]))
	}
}

// RawItem is a source-agnostic ingestion unit produced by an extractor.
// It is never mutated after creation.
type RawItem struct {
	Kind        SourceKind
	SourceName  string
	NativeID    string
	Title       string
	URL         string
	PublishedAt time.Time

	// Source-specific payload.
	Text       string        // entry body or video description, plain text
	Channel    string        // video channel title
	Duration   time.Duration // video length, zero when unknown
	Short      bool          // platform-flagged short-form video
	Categories []string      // feed entry topics
	People     []string      // tracked people this item matched
}

// CanonicalID resolves the item's canonical identifier.
func (r RawItem) CanonicalID() CanonicalID {
	return Resolve(r.Kind, r.NativeID)
}

// IsVideo reports whether the item came from the video platform.
func (r RawItem) IsVideo() bool {
	return r.Kind == KindChannelUpload || r.Kind == KindPersonAppearance
}

// EnrichedItem is a RawItem with attached analysis metadata. Created by the
// enrichment adapter and never mutated afterwards.
type EnrichedItem struct {
	RawItem

	Summary           string
	Tags              []string
	Importance        int
	KeyEntities       []string
	ActionableInsight string
}

// RunWindow bounds how far back an extraction pass searches.
type RunWindow struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether t falls inside the window.
func (w RunWindow) Contains(t time.Time) bool {
	if t.Before(w.Since) {
		return false
	}
	return w.Until.IsZero() || !t.After(w.Until)
}
