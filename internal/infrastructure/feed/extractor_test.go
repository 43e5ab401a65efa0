package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"newsroom/internal/config"
	"newsroom/internal/domain"
)

const rssBody = `<?xml version="1.0"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>ML Blog</title>
  <item>
    <title> Fresh post </title>
    <link>https://example.com/fresh</link>
    <guid>https://example.com/fresh</guid>
    <pubDate>Sun, 30 Aug 2026 10:00:00 +0000</pubDate>
    <description>&lt;p&gt;Body with &lt;b&gt;markup&lt;/b&gt;.&lt;/p&gt;</description>
    <category>Research</category>
    <category>Models</category>
  </item>
  <item>
    <title>Stale post</title>
    <link>https://example.com/stale</link>
    <guid>https://example.com/stale</guid>
    <pubDate>Mon, 05 Jan 2026 10:00:00 +0000</pubDate>
    <description>old</description>
  </item>
  <item>
    <title>No identifiers</title>
    <description>skipped</description>
  </item>
</channel>
</rss>`

const atomBody = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Lab Notes</title>
  <entry>
    <id>tag:example.org,2026:entry-1</id>
    <title>Atom entry</title>
    <link rel="alternate" href="https://example.org/entry-1"/>
    <published>2026-08-29T08:00:00Z</published>
    <summary>Plain summary.</summary>
    <category term="ai"/>
  </entry>
</feed>`

func testWindow() domain.RunWindow {
	return domain.RunWindow{
		Since: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestExtractParsesRSSAndAtom(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/rss", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(rssBody))
	})
	mux.HandleFunc("/atom", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(atomBody))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewExtractor([]config.FeedConfig{
		{Name: "ml-blog", URL: srv.URL + "/rss"},
		{Name: "lab-notes", URL: srv.URL + "/atom"},
	}, srv.Client(), nil)

	items, err := e.Extract(context.Background(), testWindow(), nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 in-window items, got %d", len(items))
	}

	rss := items[0]
	if rss.Kind != domain.KindFeedPost || rss.SourceName != "ml-blog" {
		t.Errorf("unexpected rss item origin: %+v", rss)
	}
	if rss.Title != "Fresh post" {
		t.Errorf("title not trimmed: %q", rss.Title)
	}
	if rss.Text != "Body with markup." {
		t.Errorf("markup not stripped: %q", rss.Text)
	}
	if len(rss.Categories) != 2 {
		t.Errorf("categories = %v", rss.Categories)
	}
	if rss.NativeID != "https://example.com/fresh" {
		t.Errorf("native ID should be the GUID, got %q", rss.NativeID)
	}

	atom := items[1]
	if atom.SourceName != "lab-notes" || atom.NativeID != "tag:example.org,2026:entry-1" {
		t.Errorf("unexpected atom item: %+v", atom)
	}
	if atom.URL != "https://example.org/entry-1" {
		t.Errorf("atom link = %q", atom.URL)
	}
	if atom.Text != "Plain summary." {
		t.Errorf("atom text = %q", atom.Text)
	}
}

func TestExtractSkipsBrokenFeed(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/good", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(rssBody))
	})
	mux.HandleFunc("/bad", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not xml at all"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewExtractor([]config.FeedConfig{
		{Name: "bad", URL: srv.URL + "/bad"},
		{Name: "garbage", URL: srv.URL + "/garbage"},
		{Name: "good", URL: srv.URL + "/good"},
	}, srv.Client(), nil)

	items, err := e.Extract(context.Background(), testWindow(), nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 1 || items[0].SourceName != "good" {
		t.Fatalf("expected only the healthy feed's in-window item, got %+v", items)
	}
}

func TestParsePubDateFormats(t *testing.T) {
	t.Parallel()

	cases := []string{
		"Sun, 30 Aug 2026 10:00:00 +0000",
		"Sun, 30 Aug 2026 10:00:00 GMT",
		"2026-08-30T10:00:00Z",
		"2026-08-30T12:00:00+02:00",
	}
	want := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	for _, s := range cases {
		if got := parsePubDate(s); !got.Equal(want) {
			t.Errorf("parsePubDate(%q) = %v, want %v", s, got, want)
		}
	}
	if !parsePubDate("nonsense").IsZero() {
		t.Error("unparseable date should be zero")
	}
}

func TestHTMLToText(t *testing.T) {
	t.Parallel()

	got := htmlToText("<div><p>First  line</p>\n<p>Second <a href='#'>link</a></p></div>")
	want := "First line Second link"
	if got != want {
		t.Errorf("htmlToText = %q, want %q", got, want)
	}
	if htmlToText("plain text") != "plain text" {
		t.Error("plain text should pass through untouched")
	}
}
