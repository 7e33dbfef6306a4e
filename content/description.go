package content

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

const defaultWatchBaseURL = "https://www.youtube.com"

// DescriptionSource scrapes readable text from the video watch page. Last
// resort in the chain: the watch page yields much noisier text than a
// caption track.
type DescriptionSource struct {
	httpClient *http.Client
	baseURL    string
}

// DescriptionOption configures a DescriptionSource.
type DescriptionOption func(*DescriptionSource)

// WithWatchBaseURL sets a custom base URL (for testing).
func WithWatchBaseURL(url string) DescriptionOption {
	return func(s *DescriptionSource) {
		s.baseURL = url
	}
}

// WithWatchTimeout sets the HTTP client timeout.
func WithWatchTimeout(d time.Duration) DescriptionOption {
	return func(s *DescriptionSource) {
		s.httpClient.Timeout = d
	}
}

// NewDescriptionSource creates a watch-page scraping source.
func NewDescriptionSource(opts ...DescriptionOption) *DescriptionSource {
	s := &DescriptionSource{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultWatchBaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the source in logs.
func (s *DescriptionSource) Name() string {
	return string(ProvenanceDescription)
}

// Fetch downloads the watch page and extracts its readable text.
func (s *DescriptionSource) Fetch(ctx context.Context, videoID string) (Payload, error) {
	pageURL := fmt.Sprintf("%s/watch?v=%s", s.baseURL, url.QueryEscape(videoID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; YT-Digest-Bot/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("fetch watch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Payload{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return Payload{}, fmt.Errorf("parse url: %w", err)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return Payload{}, fmt.Errorf("parse page: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return Payload{Provenance: ProvenanceNone}, nil
	}

	return Payload{Text: text, Provenance: ProvenanceDescription}, nil
}
