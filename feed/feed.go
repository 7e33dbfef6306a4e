package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://www.youtube.com"

// Video is one entry from a channel feed.
type Video struct {
	ID        string
	Title     string
	URL       string
	ChannelID string
	Published time.Time
}

// Client fetches YouTube channel RSS feeds.
type Client struct {
	httpClient *http.Client
	baseURL    string
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithNow sets the clock used for the recency window (for testing).
func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new feed client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecentVideos returns videos from the channel feed published within the
// given window, oldest first. A transport failure returns an error; callers
// treat it as an empty result for that channel.
func (c *Client) RecentVideos(ctx context.Context, channelID string, window time.Duration) ([]Video, error) {
	feedURL := fmt.Sprintf("%s/feeds/videos.xml?channel_id=%s", c.baseURL, url.QueryEscape(channelID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed for %s: %w", channelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var parsed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	cutoff := c.now().Add(-window)

	var videos []Video
	for i := len(parsed.Entries) - 1; i >= 0; i-- {
		entry := parsed.Entries[i]
		published, err := time.Parse(time.RFC3339, entry.Published)
		if err != nil {
			continue
		}
		if published.Before(cutoff) {
			continue
		}

		link := entry.Link.Href
		if link == "" {
			link = fmt.Sprintf("https://www.youtube.com/watch?v=%s", entry.VideoID)
		}

		videos = append(videos, Video{
			ID:        entry.VideoID,
			Title:     entry.Title,
			URL:       link,
			ChannelID: channelID,
			Published: published,
		})
	}

	return videos, nil
}

// Atom feed types for the YouTube channel feed.

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	VideoID   string   `xml:"videoId"`
	Title     string   `xml:"title"`
	Link      atomLink `xml:"link"`
	Published string   `xml:"published"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
}
