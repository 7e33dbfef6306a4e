package content

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimedTextBaseURL = "https://video.google.com"

// CaptionSource fetches caption tracks from the YouTube timedtext endpoint.
// With kind "" it requests the manually uploaded track (transcript); with
// kind "asr" it requests the auto-generated track (subtitle).
type CaptionSource struct {
	httpClient *http.Client
	baseURL    string
	lang       string
	kind       string
	provenance Provenance
}

// CaptionOption configures a CaptionSource.
type CaptionOption func(*CaptionSource)

// WithCaptionBaseURL sets a custom base URL (for testing).
func WithCaptionBaseURL(url string) CaptionOption {
	return func(s *CaptionSource) {
		s.baseURL = url
	}
}

// WithCaptionTimeout sets the HTTP client timeout.
func WithCaptionTimeout(d time.Duration) CaptionOption {
	return func(s *CaptionSource) {
		s.httpClient.Timeout = d
	}
}

// WithLanguage sets the requested caption language (default "en").
func WithLanguage(lang string) CaptionOption {
	return func(s *CaptionSource) {
		s.lang = lang
	}
}

// NewTranscriptSource returns a source for manually uploaded captions.
func NewTranscriptSource(opts ...CaptionOption) *CaptionSource {
	return newCaptionSource("", ProvenanceTranscript, opts...)
}

// NewSubtitleSource returns a source for auto-generated (ASR) captions.
func NewSubtitleSource(opts ...CaptionOption) *CaptionSource {
	return newCaptionSource("asr", ProvenanceSubtitle, opts...)
}

func newCaptionSource(kind string, provenance Provenance, opts ...CaptionOption) *CaptionSource {
	s := &CaptionSource{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultTimedTextBaseURL,
		lang:       "en",
		kind:       kind,
		provenance: provenance,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the source in logs.
func (s *CaptionSource) Name() string {
	return string(s.provenance)
}

// Fetch downloads the caption track and joins its cues into one text body.
// The endpoint returns an empty document for videos without the requested
// track; that is reported as an empty payload, not an error.
func (s *CaptionSource) Fetch(ctx context.Context, videoID string) (Payload, error) {
	q := url.Values{}
	q.Set("lang", s.lang)
	q.Set("v", videoID)
	if s.kind != "" {
		q.Set("kind", s.kind)
	}
	trackURL := fmt.Sprintf("%s/timedtext?%s", s.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("fetch captions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Payload{Provenance: ProvenanceNone}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Payload{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payload{}, fmt.Errorf("read captions: %w", err)
	}
	if len(body) == 0 {
		return Payload{Provenance: ProvenanceNone}, nil
	}

	text, err := joinCues(body)
	if err != nil {
		return Payload{}, fmt.Errorf("parse captions: %w", err)
	}
	if text == "" {
		return Payload{Provenance: ProvenanceNone}, nil
	}

	return Payload{Text: text, Provenance: s.provenance}, nil
}

type timedText struct {
	XMLName xml.Name `xml:"transcript"`
	Cues    []string `xml:"text"`
}

func joinCues(body []byte) (string, error) {
	var doc timedText
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(doc.Cues))
	for _, cue := range doc.Cues {
		cue = strings.TrimSpace(html.UnescapeString(cue))
		if cue != "" {
			parts = append(parts, cue)
		}
	}
	return strings.Join(parts, " "), nil
}
