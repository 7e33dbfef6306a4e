package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxErrorPreview bounds how many errored videos appear in the summary.
const maxErrorPreview = 5

// RelevantLine is one relevant video for display.
type RelevantLine struct {
	Title       string
	URL         string
	ChannelName string
}

// ErrorLine is one errored video for display.
type ErrorLine struct {
	Title       string
	ChannelName string
	Reason      string
}

// Summary is the view model for one run's notification message.
type Summary struct {
	Processed  int
	TierCounts map[string]int
	Relevant   []RelevantLine
	Errored    []ErrorLine
	Truncated  bool
}

// FormatSummary renders the run summary as a Telegram HTML message: bold
// headings, anchor links, line breaks. Titles are escaped; error reasons
// come pre-truncated from the classifier.
func FormatSummary(s *Summary) string {
	var sb strings.Builder

	sb.WriteString("<b>📺 Daily video digest</b>\n\n")
	fmt.Fprintf(&sb, "Videos checked: %d\n", s.Processed)
	fmt.Fprintf(&sb, "Relevant: %d | Errors: %d\n", len(s.Relevant), len(s.Errored))
	if s.Truncated {
		sb.WriteString("⚠️ Run hit its time budget; partial results.\n")
	}

	if len(s.Relevant) > 0 {
		sb.WriteString("\n<b>Relevant videos</b>\n")
		for _, v := range s.Relevant {
			fmt.Fprintf(&sb, "• <a href=\"%s\">%s</a> — %s\n",
				v.URL, html.EscapeString(v.Title), html.EscapeString(v.ChannelName))
		}
	} else {
		sb.WriteString("\nNo relevant videos today.\n")
	}

	if len(s.Errored) > 0 {
		sb.WriteString("\n<b>Errors</b>\n")
		preview := s.Errored
		if len(preview) > maxErrorPreview {
			preview = preview[:maxErrorPreview]
		}
		for _, e := range preview {
			fmt.Fprintf(&sb, "• %s (%s): %s\n",
				html.EscapeString(e.Title), html.EscapeString(e.ChannelName), html.EscapeString(e.Reason))
		}
		if len(s.Errored) > maxErrorPreview {
			fmt.Fprintf(&sb, "…and %d more\n", len(s.Errored)-maxErrorPreview)
		}
	}

	return sb.String()
}

// Sender delivers messages to a Telegram chat.
type Sender struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewSender creates a sender bound to one chat.
func NewSender(api *tgbotapi.BotAPI, chatID int64) *Sender {
	return &Sender{api: api, chatID: chatID}
}

// SendMessage delivers one HTML-formatted message. Delivery failure is
// returned to the caller, which logs it; there is no retry.
func (s *Sender) SendMessage(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
