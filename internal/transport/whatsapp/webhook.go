package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"sonaged-backend/internal/dispatch"
	"sonaged-backend/internal/intake"

	"github.com/rs/zerolog/log"
)

// SignatureHeader carries the HMAC of the body keyed with the app secret.
const SignatureHeader = "X-Hub-Signature-256"

// Webhook deliveries are small; anything larger is not a message notification.
const maxWebhookBody = 1 << 20

// ReplySender delivers engine replies to a WhatsApp user. *Client satisfies it.
type ReplySender interface {
	SendReplies(ctx context.Context, to string, replies []intake.Reply) error
}

// Submitter queues normalized events. *dispatch.Dispatcher satisfies it.
type Submitter interface {
	Submit(in intake.Inbound, reply dispatch.ReplyFunc) error
}

// Webhook serves the Cloud API verification handshake and message deliveries.
type Webhook struct {
	verifyToken string
	appSecret   string
	submit      Submitter
	sender      ReplySender
}

func NewWebhook(verifyToken, appSecret string, submit Submitter, sender ReplySender) *Webhook {
	return &Webhook{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		submit:      submit,
		sender:      sender,
	}
}

// Verify answers the subscription handshake by echoing hub.challenge.
func (h *Webhook) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("hub.verify_token")
	if q.Get("hub.mode") != "subscribe" || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, q.Get("hub.challenge"))
}

// Receive queues every message in the notification. A full queue answers
// 503 so the platform redelivers.
func (h *Webhook) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if h.appSecret != "" && !validSignature(h.appSecret, r.Header.Get(SignatureHeader), body) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("❌ WhatsApp webhook signature mismatch")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, in := range payload.Normalize() {
		to := strings.TrimPrefix(in.Identity, IdentityPrefix)
		err := h.submit.Submit(in, func(ctx context.Context, replies []intake.Reply) error {
			return h.sender.SendReplies(ctx, to, replies)
		})
		if errors.Is(err, dispatch.ErrQueueFull) || errors.Is(err, dispatch.ErrStopped) {
			log.Warn().Err(err).Str("identity", in.Identity).Msg("⚠️ WhatsApp event not queued")
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			log.Error().Err(err).Str("identity", in.Identity).Msg("❌ WhatsApp event rejected")
		}
	}

	w.WriteHeader(http.StatusOK)
}

func validSignature(secret, header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
