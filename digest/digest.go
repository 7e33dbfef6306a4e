package digest

import (
	"context"
	"log/slog"
	"time"

	"yt-digest-bot/classifier"
	"yt-digest-bot/content"
)

const (
	defaultRecencyWindow = 24 * time.Hour
	defaultVideoDelay    = 90 * time.Second
)

// Channel is one watched channel with its topic keywords.
type Channel struct {
	Name      string
	ChannelID string
	Keywords  []string
}

// Video is one candidate from a channel feed.
type Video struct {
	ID        string
	Title     string
	URL       string
	Published time.Time
}

// VideoVerdict records the outcome for one video, for history.
type VideoVerdict struct {
	VideoID        string
	Title          string
	ChannelName    string
	Result         classifier.Result
	Tier           classifier.Tier
	Reason         string
	MatchedKeyword string
}

// RelevantVideo is one entry of the summary's relevant list.
type RelevantVideo struct {
	Title       string
	URL         string
	ChannelName string
	Tier        classifier.Tier
}

// ErroredVideo is one entry of the summary's errored list.
type ErroredVideo struct {
	Title       string
	ChannelName string
	Reason      string
}

// Summary aggregates one run. Built only by the Runner, consumed once by
// the notifier, then discarded. Nothing here survives across runs except
// the write-only history record.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	TierCounts map[classifier.Tier]int
	Relevant   []RelevantVideo
	Errored    []ErroredVideo
	Verdicts   []VideoVerdict
	Truncated  bool
}

// FeedWatcher returns videos published within the window for a channel.
type FeedWatcher interface {
	RecentVideos(ctx context.Context, channelID string, window time.Duration) ([]Video, error)
}

// ContentChain acquires an optional text payload for a video.
type ContentChain interface {
	Fetch(ctx context.Context, videoID string) content.Payload
}

// Classifier produces a verdict for one video.
type Classifier interface {
	Classify(ctx context.Context, video classifier.Video, topics []string, payload content.Payload) classifier.Verdict
}

// Notifier delivers the run summary.
type Notifier interface {
	SendSummary(ctx context.Context, summary *Summary) error
}

// History records a finished run for diagnostics. Never read back for
// control flow: the same video seen in two consecutive runs within the
// window is reclassified and may be re-notified.
type History interface {
	RecordRun(ctx context.Context, summary *Summary) error
}

// SleepFunc waits for the duration or until the context is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Runner walks channels and their recent videos strictly sequentially:
// content fetch, classify, record, then a fixed throttle delay before the
// next video. One notification is sent per run, never per video.
type Runner struct {
	feeds      FeedWatcher
	chain      ContentChain
	classifier Classifier
	notifier   Notifier
	history    History
	channels   []Channel
	window     time.Duration
	videoDelay time.Duration
	sleep      SleepFunc
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecencyWindow sets the feed lookback window.
func WithRecencyWindow(d time.Duration) Option {
	return func(r *Runner) {
		r.window = d
	}
}

// WithVideoDelay sets the inter-video throttle delay.
func WithVideoDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.videoDelay = d
	}
}

// WithSleep replaces the throttle wait function (for testing).
func WithSleep(fn SleepFunc) Option {
	return func(r *Runner) {
		r.sleep = fn
	}
}

// WithHistory enables run-history recording.
func WithHistory(h History) Option {
	return func(r *Runner) {
		r.history = h
	}
}

// WithNow sets the clock (for testing).
func WithNow(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a runner over the given channels.
func NewRunner(
	feeds FeedWatcher,
	chain ContentChain,
	cls Classifier,
	notifier Notifier,
	channels []Channel,
	opts ...Option,
) *Runner {
	r := &Runner{
		feeds:      feeds,
		chain:      chain,
		classifier: cls,
		notifier:   notifier,
		channels:   channels,
		window:     defaultRecencyWindow,
		videoDelay: defaultVideoDelay,
		sleep:      defaultSleep,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one full pass. The context carries the overall run
// deadline: on expiry the loop stops early and the best-effort summary
// collected so far is still sent. Nothing inside the loop is fatal.
func (r *Runner) Run(ctx context.Context) *Summary {
	summary := &Summary{
		StartedAt:  r.now(),
		TierCounts: make(map[classifier.Tier]int),
	}

	slog.Info("starting run", "channels", len(r.channels), "window", r.window)

	first := true
loop:
	for _, ch := range r.channels {
		if ctx.Err() != nil {
			summary.Truncated = true
			break
		}

		videos, err := r.feeds.RecentVideos(ctx, ch.ChannelID, r.window)
		if err != nil {
			slog.Warn("feed fetch failed", "channel", ch.Name, "error", err)
			continue
		}
		slog.Info("feed fetched", "channel", ch.Name, "videos", len(videos))

		for _, v := range videos {
			// Throttle between consecutive classification calls; no
			// delay before the first video or after the last one.
			if !first {
				if err := r.sleep(ctx, r.videoDelay); err != nil {
					summary.Truncated = true
					break loop
				}
			}
			first = false

			if ctx.Err() != nil {
				summary.Truncated = true
				break loop
			}

			r.processVideo(ctx, ch, v, summary)
		}
	}

	summary.FinishedAt = r.now()
	slog.Info("run finished",
		"processed", summary.Processed,
		"relevant", len(summary.Relevant),
		"errors", len(summary.Errored),
		"truncated", summary.Truncated)

	r.finish(ctx, summary)
	return summary
}

func (r *Runner) processVideo(ctx context.Context, ch Channel, v Video, summary *Summary) {
	payload := r.chain.Fetch(ctx, v.ID)

	verdict := r.classifier.Classify(ctx, classifier.Video{
		ID:          v.ID,
		Title:       v.Title,
		URL:         v.URL,
		ChannelName: ch.Name,
	}, ch.Keywords, payload)

	summary.Processed++
	summary.TierCounts[verdict.Tier]++
	summary.Verdicts = append(summary.Verdicts, VideoVerdict{
		VideoID:        v.ID,
		Title:          v.Title,
		ChannelName:    ch.Name,
		Result:         verdict.Result,
		Tier:           verdict.Tier,
		Reason:         verdict.Reason,
		MatchedKeyword: verdict.MatchedKeyword,
	})

	switch verdict.Result {
	case classifier.Relevant:
		summary.Relevant = append(summary.Relevant, RelevantVideo{
			Title:       v.Title,
			URL:         v.URL,
			ChannelName: ch.Name,
			Tier:        verdict.Tier,
		})
	case classifier.Error:
		summary.Errored = append(summary.Errored, ErroredVideo{
			Title:       v.Title,
			ChannelName: ch.Name,
			Reason:      verdict.Reason,
		})
	}

	slog.Info("video classified",
		"video_id", v.ID,
		"channel", ch.Name,
		"result", verdict.Result,
		"tier", verdict.Tier,
		"provenance", payload.Provenance)
}

// finish sends the single notification and writes history. A canceled run
// context must not block delivery of the partial summary, so both use a
// fresh bounded context detached from the run's deadline.
func (r *Runner) finish(ctx context.Context, summary *Summary) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := r.notifier.SendSummary(sendCtx, summary); err != nil {
		slog.Warn("summary notification failed", "error", err)
	}

	if r.history != nil {
		if err := r.history.RecordRun(sendCtx, summary); err != nil {
			slog.Warn("history record failed", "error", err)
		}
	}
}
