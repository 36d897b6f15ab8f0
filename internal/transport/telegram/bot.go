package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"sonaged-backend/internal/dispatch"
	"sonaged-backend/internal/intake"
	"sonaged-backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// SecretHeader carries the webhook secret Telegram echoes on every delivery.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const commandGroupInfo = "groupinfo"

// IdentityPrefix namespaces Telegram chats among conversation identities.
const IdentityPrefix = "telegram:"

// Sender is the part of *tgbotapi.BotAPI used to answer users.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Submitter queues normalized events. *dispatch.Dispatcher satisfies it.
type Submitter interface {
	Submit(in intake.Inbound, reply dispatch.ReplyFunc) error
}

// Bot adapts Telegram updates to the intake conversation and renders its
// replies back as chat messages.
type Bot struct {
	api    Sender
	submit Submitter
	secret string
}

func NewBot(api Sender, submit Submitter, webhookSecret string) *Bot {
	return &Bot{api: api, submit: submit, secret: webhookSecret}
}

// Identity returns the conversation identity of a chat.
func Identity(chatID int64) string {
	return IdentityPrefix + strconv.FormatInt(chatID, 10)
}

// Normalize turns a private-chat message into an inbound event. It reports
// false for messages the conversation has no use for (stickers, edits, ...).
func Normalize(m *tgbotapi.Message) (intake.Inbound, bool) {
	if m == nil || m.Chat == nil {
		return intake.Inbound{}, false
	}

	in := intake.Inbound{
		Identity:     Identity(m.Chat.ID),
		ReporterName: reporterName(m.From),
		Channel:      models.ChannelTelegram,
	}

	switch {
	case m.Location != nil:
		in.Payload = intake.NewLocation(m.Location.Latitude, m.Location.Longitude)
	case len(m.Photo) > 0:
		// Sizes are listed smallest first
		in.Payload = intake.Photo{Ref: m.Photo[len(m.Photo)-1].FileID}
	case m.Text != "":
		in.Payload = intake.Text{Value: m.Text}
	default:
		return intake.Inbound{}, false
	}
	return in, true
}

func reporterName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.UserName != "" {
		name = "@" + u.UserName
	}
	return name
}

// RenderReply builds the chat message for one reply. Options become a
// one-time reply keyboard, one button per row; a location request becomes a
// native location button.
func RenderReply(chatID int64, r intake.Reply) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, r.Text)

	if len(r.Options) == 0 && !r.RequestLocation {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		return msg
	}

	var rows [][]tgbotapi.KeyboardButton
	locationRendered := false
	for _, opt := range r.Options {
		if opt.ID == intake.SendLocationID && r.RequestLocation {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonLocation(opt.Label)))
			locationRendered = true
			continue
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(opt.Label)))
	}
	if r.RequestLocation && !locationRendered {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonLocation("📍 Send my location")))
	}

	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.OneTimeKeyboard = true
	keyboard.ResizeKeyboard = true
	msg.ReplyMarkup = keyboard
	return msg
}

// HandleUpdate routes one update. Only dispatch errors are returned so the
// webhook can ask Telegram to retry.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) error {
	m := upd.Message
	if m == nil || m.Chat == nil {
		return nil
	}

	if m.IsCommand() && m.Command() == commandGroupInfo {
		b.sendGroupInfo(m.Chat)
		return nil
	}
	// Groups only receive broadcasts
	if !m.Chat.IsPrivate() {
		return nil
	}

	in, ok := Normalize(m)
	if !ok {
		return nil
	}

	chatID := m.Chat.ID
	err := b.submit.Submit(in, func(_ context.Context, replies []intake.Reply) error {
		return b.deliver(chatID, replies)
	})
	if err != nil {
		log.Warn().Err(err).Str("identity", in.Identity).Msg("⚠️ Telegram event not queued")
		return err
	}
	return nil
}

func (b *Bot) deliver(chatID int64, replies []intake.Reply) error {
	var errs []error
	for _, r := range replies {
		if _, err := b.api.Send(RenderReply(chatID, r)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bot) sendGroupInfo(chat *tgbotapi.Chat) {
	title := chat.Title
	if title == "" {
		title = "Private chat"
	}
	text := fmt.Sprintf("📋 Chat information:\n\n🏷 Type: %s\n📝 Name: %s\n🆔 Chat ID: %d\n\n"+
		"To receive report notifications here, set GROUP_CHAT_ID=%d.", chat.Type, title, chat.ID, chat.ID)
	if _, err := b.api.Send(tgbotapi.NewMessage(chat.ID, text)); err != nil {
		log.Warn().Err(err).Int64("chat_id", chat.ID).Msg("⚠️ Failed to send group info")
	}
}

// WebhookHandler accepts updates pushed by Telegram.
func (b *Bot) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if b.secret != "" {
			provided := r.Header.Get(SecretHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(b.secret)) != 1 {
				log.Warn().Str("remote", r.RemoteAddr).Msg("❌ Telegram webhook secret mismatch")
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}

		var upd tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			http.Error(w, "invalid update", http.StatusBadRequest)
			return
		}

		if err := b.HandleUpdate(r.Context(), upd); err != nil {
			if errors.Is(err, dispatch.ErrQueueFull) || errors.Is(err, dispatch.ErrStopped) {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Poller is the part of *tgbotapi.BotAPI used for long polling.
type Poller interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// StartLongPolling feeds updates to HandleUpdate until ctx is cancelled.
func (b *Bot) StartLongPolling(ctx context.Context, poller Poller) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := poller.GetUpdatesChan(u)
	defer poller.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

// Requester is the part of *tgbotapi.BotAPI used to manage the webhook.
type Requester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// RegisterWebhook points Telegram at url, with secret echoed in SecretHeader.
func RegisterWebhook(api Requester, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	params["allowed_updates"] = `["message"]`

	resp, err := api.MakeRequest("setWebhook", params)
	if err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("failed to set webhook: %s", resp.Description)
	}
	return nil
}

// DeleteWebhook switches the bot back to getUpdates.
func DeleteWebhook(api Requester) error {
	if _, err := api.MakeRequest("deleteWebhook", tgbotapi.Params{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}
