// Package websearch retrieves current information through a SearXNG
// metasearch instance and shapes it into a prompt for the chat model.
//
// One tool is exported via [NewTools]: external_information runs the
// query, pulls readable text from the top results, and returns a
// context block ending in a "User question:" marker. The assistant
// feeds any tool result carrying that marker back through the chat
// model instead of speaking it verbatim.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/MrWong99/auricle/internal/timeutil"
	"github.com/MrWong99/auricle/internal/tools"
)

const (
	topResults    = 3
	maxSnippetLen = 3000
	// Pages beyond this can't contribute to the snippet cap anyway.
	fetchLimit = 2 << 20

	defaultQuery = "get me the latest news stories"
)

// Config describes the SearXNG instance to query.
type Config struct {
	// SearxURL is the search endpoint, e.g. http://localhost:8888/search.
	SearxURL string `yaml:"searxng_url"`
	// Timeout bounds the search request and each page fetch.
	Timeout timeutil.Duration `yaml:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = timeutil.Duration(10 * time.Second)
	}
	return c
}

// Service runs searches and distills result pages into text snippets.
type Service struct {
	searxURL string
	client   *http.Client
	now      func() time.Time
}

// New creates a Service querying the instance described by cfg.
func New(cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		searxURL: cfg.SearxURL,
		client:   &http.Client{Timeout: cfg.Timeout.Std()},
		now:      time.Now,
	}
}

// Gather searches for the query and composes the chat prompt: today's
// date, snippets from the top results, and the original question.
func (s *Service) Gather(ctx context.Context, query string) string {
	if strings.TrimSpace(query) == "" {
		query = defaultQuery
	}

	var snippets []string
	urls, err := s.search(ctx, query)
	if err != nil {
		slog.Error("websearch: unable to search web", "error", err)
	} else {
		for _, u := range urls {
			snippet := s.fetchSummary(ctx, u)
			snippets = append(snippets, fmt.Sprintf("\n\nFrom %s: %s...", u, snippet))
		}
	}

	lines := []string{"Today is " + s.now().Format("January 02, 2006") + ".", ""}
	if len(snippets) > 0 {
		lines = append(lines, "A web search has retrieved the following information:")
		lines = append(lines, snippets...)
		lines = append(lines, "")
	}
	lines = append(lines, "User question:", query)
	return strings.Join(lines, "\n")
}

// search returns the top result URLs for a query.
func (s *Service) search(ctx context.Context, query string) ([]string, error) {
	u, err := url.Parse(s.searxURL)
	if err != nil {
		return nil, fmt.Errorf("websearch: parse searx url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("categories", "general")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: build search request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: query searx: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("websearch: searx returned %d", resp.StatusCode)
	}

	var body struct {
		Results []struct {
			URL string `json:"url"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("websearch: decode searx response: %w", err)
	}

	urls := make([]string, 0, topResults)
	for _, r := range body.Results {
		if len(urls) == topResults {
			break
		}
		urls = append(urls, r.URL)
	}
	return urls, nil
}

// fetchSummary pulls a page and returns its readable text, capped at
// maxSnippetLen. Failures yield an empty snippet, never an error; a
// dead link should not sink the whole search.
func (s *Service) fetchSummary(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	resp, err := s.client.Do(req)
	if err != nil {
		slog.Debug("websearch: page fetch failed", "url", pageURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	src, err := io.ReadAll(io.LimitReader(resp.Body, fetchLimit))
	if err != nil {
		return ""
	}

	text := readableText(string(src))
	if len(text) > maxSnippetLen {
		cut := maxSnippetLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

var spaceRun = regexp.MustCompile(`\s+`)

// dropTags are the elements whose text is navigation or machinery, not
// content.
var dropTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"footer":   true,
	"header":   true,
	"nav":      true,
	"aside":    true,
	"form":     true,
}

// readableText extracts the visible prose from an HTML page. It
// prefers substantial paragraphs and falls back to all visible text
// when a page has none, then collapses whitespace.
func readableText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return ""
	}

	var paragraphs []string
	collectParagraphs(doc, &paragraphs)
	text := strings.Join(paragraphs, "\n")
	if text == "" {
		var parts []string
		visibleText(doc, &parts)
		text = strings.Join(parts, " ")
	}
	return strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
}

func collectParagraphs(n *html.Node, out *[]string) {
	if n.Type == html.ElementNode && dropTags[n.Data] {
		return
	}
	if n.Type == html.ElementNode && n.Data == "p" {
		var parts []string
		visibleText(n, &parts)
		// Short paragraphs are usually captions or links.
		if text := strings.Join(parts, " "); len(text) > 40 {
			*out = append(*out, text)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectParagraphs(c, out)
	}
}

func visibleText(n *html.Node, parts *[]string) {
	if n.Type == html.ElementNode && dropTags[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			*parts = append(*parts, s)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visibleText(c, parts)
	}
}

// NewTools returns the web search tool backed by s.
func NewTools(s *Service) []tools.Tool {
	return []tools.Tool{
		{
			Name:        "external_information",
			Aliases:     []string{"web_search", "current_events", "fact_search"},
			Description: "Retrieve news and current event information through web search",
			Run: func(ctx context.Context, args map[string]string) string {
				return s.Gather(ctx, args["query"])
			},
		},
	}
}
