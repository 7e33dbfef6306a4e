package content

import (
	"context"
	"log/slog"
)

// Provenance identifies which source produced a payload.
type Provenance string

const (
	ProvenanceTranscript  Provenance = "transcript"
	ProvenanceSubtitle    Provenance = "subtitle"
	ProvenanceDescription Provenance = "description"
	ProvenanceNone        Provenance = "none"
)

// Payload is the text obtained for a video, if any. An empty payload with
// provenance "none" is a normal state: many videos have no captions and no
// scrapable description.
type Payload struct {
	Text       string
	Provenance Provenance
}

// Empty reports whether the payload carries no text.
func (p Payload) Empty() bool {
	return p.Text == ""
}

// Len returns the payload text length in bytes.
func (p Payload) Len() int {
	return len(p.Text)
}

// Source attempts to obtain text for a video. Returning an empty payload
// with a nil error means the source had nothing; an error means the attempt
// itself failed. Either way the chain moves on.
type Source interface {
	Fetch(ctx context.Context, videoID string) (Payload, error)
	Name() string
}

// Chain tries sources in order and returns the first non-empty payload.
type Chain struct {
	sources []Source
}

// NewChain creates a chain over the given sources, tried in order.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// Fetch runs the chain. It never returns an error: content acquisition
// failure is a normal empty state for the classifier, not a fault.
func (c *Chain) Fetch(ctx context.Context, videoID string) Payload {
	for _, src := range c.sources {
		payload, err := src.Fetch(ctx, videoID)
		if err != nil {
			slog.Warn("content source failed", "source", src.Name(), "video_id", videoID, "error", err)
			continue
		}
		if !payload.Empty() {
			slog.Info("content acquired", "source", src.Name(), "video_id", videoID, "length", payload.Len())
			return payload
		}
	}
	return Payload{Provenance: ProvenanceNone}
}
