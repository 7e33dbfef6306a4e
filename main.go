package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"yt-digest-bot/bot"
	"yt-digest-bot/classifier"
	"yt-digest-bot/config"
	"yt-digest-bot/content"
	"yt-digest-bot/digest"
	"yt-digest-bot/feed"
	"yt-digest-bot/gemini"
	"yt-digest-bot/scheduler"
	"yt-digest-bot/storage"
)

func main() {
	once := flag.Bool("once", false, "run a single digest pass immediately and exit")
	configPath := flag.String("config", "", "path to config file (default $YT_BOT_CONFIG or ./config.yaml)")
	flag.Parse()

	// Secrets may live in a .env file next to the binary.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	slog.Info("starting yt-digest-bot")

	path := *configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load config", "path", path, "error", err)
		os.Exit(1)
	}
	slog.Info("config loaded", "path", path, "channels", len(cfg.Channels))

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		slog.Error("failed to initialize database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if last, err := db.LastRun(context.Background()); err == nil {
		slog.Info("last recorded run",
			"finished_at", last.FinishedAt,
			"processed", last.Processed,
			"relevant", last.RelevantCount)
	} else if !errors.Is(err, storage.ErrNotFound) {
		slog.Warn("failed to read run history", "error", err)
	}

	runner := buildRunner(cfg, db)

	runTimeout := time.Duration(cfg.RunTimeoutMins) * time.Minute

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		runner.Run(ctx)
		return
	}

	sched, err := scheduler.New(cfg.Timezone)
	if err != nil {
		slog.Error("failed to initialize scheduler", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	if err := sched.ScheduleDaily(cfg.RunTime, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		runner.Run(ctx)
	}); err != nil {
		slog.Error("failed to schedule run", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()
	slog.Info("daily run scheduled", "time", cfg.RunTime, "timezone", cfg.Timezone)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received shutdown signal", "signal", sig)
}

// buildRunner wires the pipeline. Missing credentials disable only the
// dependent pieces: without a Gemini key the classifier runs on keyword
// matching alone, and without Telegram credentials the summary is logged
// instead of sent.
func buildRunner(cfg *config.Config, db *storage.DB) *digest.Runner {
	fetchTimeout := time.Duration(cfg.FetchTimeoutSecs) * time.Second

	feedClient := feed.NewClient(feed.WithTimeout(fetchTimeout))

	chain := content.NewChain(
		content.NewTranscriptSource(content.WithCaptionTimeout(fetchTimeout)),
		content.NewSubtitleSource(content.WithCaptionTimeout(fetchTimeout)),
		content.NewDescriptionSource(content.WithWatchTimeout(fetchTimeout)),
	)

	var decisionClient classifier.DecisionClient
	if cfg.HasGemini() {
		decisionClient = gemini.NewClient(cfg.GeminiAPIKey, gemini.WithModel(cfg.GeminiModel))
	} else {
		slog.Warn("no Gemini API key configured; classification degrades to keyword matching")
	}

	cls := classifier.New(decisionClient,
		classifier.WithFallbackOnError(cfg.FallbackOnError),
	)

	var notifier digest.Notifier
	if cfg.HasTelegram() {
		api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			slog.Warn("failed to initialize Telegram bot; summaries will be logged", "error", err)
			notifier = &logNotifier{}
		} else {
			slog.Info("telegram bot initialized", "username", api.Self.UserName)
			notifier = &telegramNotifier{sender: bot.NewSender(api, cfg.ChatID)}
		}
	} else {
		slog.Warn("no Telegram credentials configured; summaries will be logged")
		notifier = &logNotifier{}
	}

	channels := make([]digest.Channel, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		channels[i] = digest.Channel{
			Name:      ch.Name,
			ChannelID: ch.ChannelID,
			Keywords:  ch.Keywords,
		}
	}

	return digest.NewRunner(
		&feedAdapter{client: feedClient},
		chain,
		cls,
		notifier,
		channels,
		digest.WithRecencyWindow(time.Duration(cfg.LookbackHours)*time.Hour),
		digest.WithVideoDelay(time.Duration(cfg.VideoDelaySecs)*time.Second),
		digest.WithHistory(&historyAdapter{db: db}),
	)
}

// Adapter types bridging concrete clients to the digest package interfaces.

type feedAdapter struct {
	client *feed.Client
}

func (f *feedAdapter) RecentVideos(ctx context.Context, channelID string, window time.Duration) ([]digest.Video, error) {
	videos, err := f.client.RecentVideos(ctx, channelID, window)
	if err != nil {
		return nil, err
	}
	out := make([]digest.Video, len(videos))
	for i, v := range videos {
		out[i] = digest.Video{
			ID:        v.ID,
			Title:     v.Title,
			URL:       v.URL,
			Published: v.Published,
		}
	}
	return out, nil
}

type telegramNotifier struct {
	sender *bot.Sender
}

func (t *telegramNotifier) SendSummary(ctx context.Context, summary *digest.Summary) error {
	return t.sender.SendMessage(ctx, bot.FormatSummary(toBotSummary(summary)))
}

// logNotifier is the degraded-mode notifier used when Telegram credentials
// are absent.
type logNotifier struct{}

func (l *logNotifier) SendSummary(_ context.Context, summary *digest.Summary) error {
	slog.Info("run summary",
		"processed", summary.Processed,
		"relevant", len(summary.Relevant),
		"errors", len(summary.Errored),
		"truncated", summary.Truncated)
	return nil
}

func toBotSummary(summary *digest.Summary) *bot.Summary {
	tierCounts := make(map[string]int, len(summary.TierCounts))
	for tier, n := range summary.TierCounts {
		tierCounts[string(tier)] = n
	}

	out := &bot.Summary{
		Processed:  summary.Processed,
		TierCounts: tierCounts,
		Truncated:  summary.Truncated,
	}
	for _, v := range summary.Relevant {
		out.Relevant = append(out.Relevant, bot.RelevantLine{
			Title:       v.Title,
			URL:         v.URL,
			ChannelName: v.ChannelName,
		})
	}
	for _, e := range summary.Errored {
		out.Errored = append(out.Errored, bot.ErrorLine{
			Title:       e.Title,
			ChannelName: e.ChannelName,
			Reason:      e.Reason,
		})
	}
	return out
}

type historyAdapter struct {
	db *storage.DB
}

func (h *historyAdapter) RecordRun(ctx context.Context, summary *digest.Summary) error {
	run := &storage.RunRecord{
		StartedAt:     summary.StartedAt,
		FinishedAt:    summary.FinishedAt,
		Processed:     summary.Processed,
		RelevantCount: len(summary.Relevant),
		ErrorCount:    len(summary.Errored),
		Truncated:     summary.Truncated,
	}

	verdicts := make([]storage.VerdictRecord, len(summary.Verdicts))
	for i, v := range summary.Verdicts {
		verdicts[i] = storage.VerdictRecord{
			VideoID:        v.VideoID,
			Title:          v.Title,
			ChannelName:    v.ChannelName,
			Result:         string(v.Result),
			Tier:           string(v.Tier),
			Reason:         v.Reason,
			MatchedKeyword: v.MatchedKeyword,
		}
	}

	_, err := h.db.SaveRun(ctx, run, verdicts)
	return err
}
