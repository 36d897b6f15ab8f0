package services

import (
	"context"
	"fmt"
	"time"

	"sonaged-backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Telegram rejects photo captions longer than this.
const maxCaptionLength = 1024

// TelegramSender is the part of *tgbotapi.BotAPI the group target uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// MediaFetcher downloads a photo that lives on another platform, such as a
// WhatsApp media id.
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, error)
}

// TelegramGroupTarget posts report summaries to a Telegram group chat.
type TelegramGroupTarget struct {
	bot     TelegramSender
	chatID  int64
	limiter *rate.Limiter
	media   map[string]MediaFetcher
}

// NewTelegramGroupTarget throttles to one post every three seconds with a
// small burst, inside Telegram's per-group limit.
func NewTelegramGroupTarget(bot TelegramSender, chatID int64) *TelegramGroupTarget {
	return &TelegramGroupTarget{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 5),
		media:   make(map[string]MediaFetcher),
	}
}

// WithMedia registers how to download photos of reports from channel.
func (t *TelegramGroupTarget) WithMedia(channel string, f MediaFetcher) *TelegramGroupTarget {
	t.media[channel] = f
	return t
}

func (t *TelegramGroupTarget) Name() string { return "telegram_group" }

// Deliver sends the photo with the summary as caption when the report
// carries one, and falls back to a plain text post.
func (t *TelegramGroupTarget) Deliver(ctx context.Context, n Notification) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram group rate limit: %w", err)
	}

	if n.Report.HasPhoto() && len(n.Summary) <= maxCaptionLength {
		file, err := t.photoFile(ctx, n.Report)
		if err == nil {
			photo := tgbotapi.NewPhoto(t.chatID, file)
			photo.Caption = n.Summary
			if _, err = t.bot.Send(photo); err == nil {
				return nil
			}
		}
		log.Warn().Err(err).Str("report_id", n.Report.ID).Msg("⚠️ Group photo post failed, sending text")
	}

	msg := tgbotapi.NewMessage(t.chatID, n.Summary)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to post to group %d: %w", t.chatID, err)
	}
	return nil
}

// photoFile resolves the report's photo reference. Telegram file ids are
// reused as is; other channels need a registered MediaFetcher.
func (t *TelegramGroupTarget) photoFile(ctx context.Context, r models.Report) (tgbotapi.RequestFileData, error) {
	ref := *r.PhotoRef
	if r.Channel == models.ChannelTelegram {
		return tgbotapi.FileID(ref), nil
	}
	fetcher, ok := t.media[r.Channel]
	if !ok {
		return nil, fmt.Errorf("no media source for channel %q", r.Channel)
	}
	data, err := fetcher.DownloadMedia(ctx, ref)
	if err != nil {
		return nil, err
	}
	return tgbotapi.FileBytes{Name: ref + ".jpg", Bytes: data}, nil
}
