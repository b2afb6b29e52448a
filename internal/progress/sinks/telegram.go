package sinks

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/JakeFAU/dataset-importer/internal/progress"
)

// MessageSender is the subset of *tgbotapi.BotAPI used to deliver reports.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink sends a run report to a chat when a run finishes.
type TelegramSink struct {
	sender  MessageSender
	chatID  int64
	tracker *progress.Tracker
}

// NewTelegramSink reports to chatID through sender.
func NewTelegramSink(sender MessageSender, chatID int64) *TelegramSink {
	return &TelegramSink{sender: sender, chatID: chatID, tracker: progress.NewTracker(2)}
}

// Name implements progress.Named.
func (s *TelegramSink) Name() string { return "telegram" }

// Consume folds the batch and sends one report per finished run.
func (s *TelegramSink) Consume(ctx context.Context, batch []progress.Event) error {
	if err := s.tracker.Consume(ctx, batch); err != nil {
		return err
	}
	for _, evt := range batch {
		if evt.Stage != progress.StageRunDone && evt.Stage != progress.StageRunError {
			continue
		}
		snap, ok := s.tracker.Run(evt.RunUUID())
		if !ok {
			continue
		}
		msg := tgbotapi.NewMessage(s.chatID, FormatReport(snap))
		if _, err := s.sender.Send(msg); err != nil {
			return fmt.Errorf("send telegram report: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *TelegramSink) Close(context.Context) error {
	return nil
}

// FormatReport renders a plain-text run report.
func FormatReport(snap progress.RunSnapshot) string {
	var b strings.Builder
	icon := "✅"
	if snap.Status == "error" {
		icon = "❌"
	}
	fmt.Fprintf(&b, "%s Import run %s: %s\n", icon, snap.RunID, snap.Status)
	if snap.Finished != nil {
		fmt.Fprintf(&b, "Duration: %s\n", snap.Finished.Sub(snap.Started).Round(time.Second))
	}
	for _, src := range snap.Sources {
		fmt.Fprintf(&b, "• %s [%s] committed=%d fallback=%d rejected=%d failed=%d",
			src.Source, src.State,
			src.Counts.Committed, src.Counts.FallbackCommitted, src.Counts.Rejected, src.Counts.Failed,
		)
		if src.Elapsed > 0 {
			fmt.Fprintf(&b, " in %.2fs", src.Elapsed.Seconds())
		}
		if src.Error != "" {
			fmt.Fprintf(&b, "\n  error: %s", src.Error)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Total: committed=%d fallback=%d rejected=%d failed=%d",
		snap.Counts.Committed, snap.Counts.FallbackCommitted, snap.Counts.Rejected, snap.Counts.Failed,
	)
	return b.String()
}
