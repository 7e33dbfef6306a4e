package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"yt-digest-bot/content"
)

// Result is the binary classification outcome, or Error when a tier failed.
type Result string

const (
	Relevant    Result = "RELEVANT"
	NotRelevant Result = "NOT_RELEVANT"
	Error       Result = "ERROR"
)

// Tier identifies which cascade stage produced a verdict.
type Tier string

const (
	TierContent Tier = "content-analysis"
	TierTitle   Tier = "title-analysis"
	TierKeyword Tier = "keyword-match"
)

// Video carries the fields the classifier needs.
type Video struct {
	ID          string
	Title       string
	URL         string
	ChannelName string
}

// Verdict is the outcome for one video in one run.
type Verdict struct {
	Result         Result
	Tier           Tier
	Reason         string
	MatchedKeyword string
}

// DecisionClient produces a binary relevance answer for a prompt. May be
// nil, in which case the language-model tiers are disabled and
// classification degrades to keyword matching.
type DecisionClient interface {
	Decide(ctx context.Context, prompt string) (bool, error)
}

const (
	defaultMinContentLen = 100
	defaultMaxContentLen = 3000
	defaultTopicCap      = 6
	maxReasonLen         = 100
)

// domainTerms supplements the per-channel keyword lists in the final tier.
// Covers common exam-economics phrasing not every channel's list carries.
var domainTerms = []string{
	"budget", "economic survey", "gdp", "inflation", "tax",
	"trade", "fta", "india-eu", "india eu", "rbi",
	"finance minister", "union budget", "fiscal", "monetary",
	"economy", "economic", "commerce", "industry",
	"de-dollar", "dollar", "currency", "imf", "export", "import",
	"banking", "finance", "scheme", "policy", "government",
}

// Classifier runs the tiered relevance cascade: content analysis, then
// title analysis, then local keyword matching. The cascade short-circuits
// on the first RELEVANT; the keyword tier is total and guarantees
// termination with a binary verdict.
type Classifier struct {
	client          DecisionClient
	minContentLen   int
	maxContentLen   int
	topicCap        int
	fallbackOnError bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithMinContentLength sets the minimum payload length for content analysis.
func WithMinContentLength(n int) Option {
	return func(c *Classifier) {
		c.minContentLen = n
	}
}

// WithMaxContentLength sets the prompt content truncation cap.
func WithMaxContentLength(n int) Option {
	return func(c *Classifier) {
		c.maxContentLen = n
	}
}

// WithTopicCap sets how many leading topics are sent to the language model.
func WithTopicCap(n int) Option {
	return func(c *Classifier) {
		c.topicCap = n
	}
}

// WithFallbackOnError controls whether a failed language-model tier
// surfaces an Error verdict immediately (false) or the cascade continues
// to the next tier as a recovery path (true).
func WithFallbackOnError(enabled bool) Option {
	return func(c *Classifier) {
		c.fallbackOnError = enabled
	}
}

// New creates a classifier. A nil client disables the language-model tiers.
func New(client DecisionClient, opts ...Option) *Classifier {
	c := &Classifier{
		client:          client,
		minContentLen:   defaultMinContentLen,
		maxContentLen:   defaultMaxContentLen,
		topicCap:        defaultTopicCap,
		fallbackOnError: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify runs the cascade and always returns exactly one verdict. A NO
// from a language-model tier is not treated as final: the keyword tier
// still gets a chance to find an exact topic mention the model missed.
// After a content-grounded NO the title-only tier is skipped, because the
// content prompt already included the title.
func (c *Classifier) Classify(ctx context.Context, video Video, topics []string, payload content.Payload) Verdict {
	// Tier 1: content analysis.
	if c.client != nil && !payload.Empty() && payload.Len() > c.minContentLen {
		relevant, err := c.client.Decide(ctx, c.contentPrompt(video, topics, payload))
		switch {
		case err != nil:
			if !c.fallbackOnError {
				return Verdict{Result: Error, Tier: TierContent, Reason: truncateReason(err)}
			}
			slog.Warn("content analysis failed, falling through",
				"video_id", video.ID, "error", err)
		case relevant:
			return Verdict{Result: Relevant, Tier: TierContent}
		default:
			return c.keywordMatch(video, topics)
		}
	}

	// Tier 2: title analysis.
	if c.client != nil {
		relevant, err := c.client.Decide(ctx, c.titlePrompt(video, topics))
		switch {
		case err != nil:
			if !c.fallbackOnError {
				return Verdict{Result: Error, Tier: TierTitle, Reason: truncateReason(err)}
			}
			slog.Warn("title analysis failed, falling through",
				"video_id", video.ID, "error", err)
		case relevant:
			return Verdict{Result: Relevant, Tier: TierTitle}
		}
	}

	// Tier 3: keyword match. Local, total, terminates the cascade.
	return c.keywordMatch(video, topics)
}

func (c *Classifier) keywordMatch(video Video, topics []string) Verdict {
	title := strings.ToLower(strings.TrimSpace(video.Title))
	if title == "" {
		return Verdict{Result: NotRelevant, Tier: TierKeyword}
	}

	for _, kw := range topics {
		if kw != "" && strings.Contains(title, strings.ToLower(kw)) {
			return Verdict{Result: Relevant, Tier: TierKeyword, MatchedKeyword: kw}
		}
	}
	for _, term := range domainTerms {
		if strings.Contains(title, term) {
			return Verdict{Result: Relevant, Tier: TierKeyword, MatchedKeyword: term}
		}
	}

	return Verdict{Result: NotRelevant, Tier: TierKeyword}
}

func (c *Classifier) contentPrompt(video Video, topics []string, payload content.Payload) string {
	text := payload.Text
	if len(text) > c.maxContentLen {
		text = text[:c.maxContentLen]
	}

	return fmt.Sprintf(`VIDEO TITLE: %s
CHANNEL: %s

CONTENT:
%s

QUESTION: Is this video about ANY of these specific topics?
TOPICS: %s

IMPORTANT: Answer YES if it discusses ANY of these topics (even just one).

Respond with ONLY: YES or NO`,
		video.Title, video.ChannelName, text, c.joinTopics(video, topics))
}

func (c *Classifier) titlePrompt(video Video, topics []string) string {
	return fmt.Sprintf(`Judge this YouTube video title for topical fit.

TITLE: %q
CHANNEL: %s

RELEVANT TOPICS: %s

Is the video about any of these topics?

Answer with ONLY one word: YES or NO`,
		video.Title, video.ChannelName, c.joinTopics(video, topics))
}

func (c *Classifier) joinTopics(video Video, topics []string) string {
	if len(topics) > c.topicCap {
		slog.Info("topic list capped for prompt",
			"video_id", video.ID, "total", len(topics), "cap", c.topicCap)
		topics = topics[:c.topicCap]
	}
	return strings.Join(topics, ", ")
}

func truncateReason(err error) string {
	reason := err.Error()
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	return reason
}
