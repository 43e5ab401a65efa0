package usecase

import (
	"strings"
	"time"

	"newsroom/internal/domain"
)

// relevanceTerms marks an item from a mixed-topic feed as worth enriching.
var relevanceTerms = []string{
	"ai",
	"artificial intelligence",
	"machine learning",
	"deep learning",
	"llm",
	"language model",
	"neural",
	"gpt",
	"gemini",
	"claude",
	"transformer",
	"agent",
	"inference",
	"foundation model",
}

// Classifier applies the rule-based keep/drop decision that runs before
// enrichment, so irrelevant items never cost a model call.
type Classifier struct {
	shortsMax    time.Duration
	mixedSources map[string]bool
}

// NewClassifier builds a classifier. mixedSources names feed sources that
// publish on several topics and therefore need the relevance check; items
// from dedicated sources pass it unconditionally.
func NewClassifier(shortsMax time.Duration, mixedSources []string) *Classifier {
	mixed := make(map[string]bool, len(mixedSources))
	for _, name := range mixedSources {
		mixed[name] = true
	}
	if shortsMax <= 0 {
		shortsMax = 60 * time.Second
	}
	return &Classifier{shortsMax: shortsMax, mixedSources: mixed}
}

// Keep reports whether the item should continue to enrichment. Deterministic
// given the item's payload.
func (c *Classifier) Keep(item domain.RawItem) bool {
	if item.IsVideo() {
		if item.Short {
			return false
		}
		if item.Duration > 0 && item.Duration < c.shortsMax {
			return false
		}
		return true
	}

	if !c.mixedSources[item.SourceName] {
		return true
	}
	return relevant(item)
}

func relevant(item domain.RawItem) bool {
	haystack := strings.ToLower(item.Title + " " + item.Text + " " + strings.Join(item.Categories, " "))
	for _, term := range relevanceTerms {
		if containsWord(haystack, term) {
			return true
		}
	}
	return false
}

// containsWord matches term on word boundaries so "ai" does not match
// inside "maintain".
func containsWord(haystack, term string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || !isAlnum(haystack[start-1])
		afterOK := end == len(haystack) || !isAlnum(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
