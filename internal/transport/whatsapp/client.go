package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"sonaged-backend/internal/config"
	"sonaged-backend/internal/intake"

	"golang.org/x/time/rate"
)

// Cloud API limits for reply buttons.
const (
	maxButtons     = 3
	maxButtonTitle = 20
)

// maxMediaBytes matches Telegram's photo upload limit; larger media is refused.
const maxMediaBytes = 10 << 20

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	http          *http.Client
	limiter       *rate.Limiter
}

func NewClient(cfg config.WhatsAppConfig) *Client {
	return &Client{
		baseURL:       cfg.APIBaseURL,
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		http:          &http.Client{Timeout: 15 * time.Second},
		limiter:       rate.NewLimiter(rate.Limit(20), 20),
	}
}

type outbound struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *TextBody    `json:"text,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
}

type interactive struct {
	Type   string            `json:"type"`
	Body   interactiveBody   `json:"body"`
	Action interactiveAction `json:"action"`
}

type interactiveBody struct {
	Text string `json:"text"`
}

type interactiveAction struct {
	Name    string        `json:"name,omitempty"`
	Buttons []replyButton `json:"buttons,omitempty"`
}

type replyButton struct {
	Type  string    `json:"type"`
	Reply ReplyItem `json:"reply"`
}

// BuildMessage renders one reply for recipient. Options become reply
// buttons; a bare location request becomes a location request message.
func BuildMessage(to string, r intake.Reply) any {
	msg := outbound{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
	}

	switch {
	case len(r.Options) > 0:
		buttons := make([]replyButton, 0, maxButtons)
		for i, opt := range r.Options {
			if i == maxButtons {
				break
			}
			buttons = append(buttons, replyButton{
				Type:  "reply",
				Reply: ReplyItem{ID: opt.ID, Title: truncate(opt.Label, maxButtonTitle)},
			})
		}
		msg.Type = "interactive"
		msg.Interactive = &interactive{
			Type:   "button",
			Body:   interactiveBody{Text: r.Text},
			Action: interactiveAction{Buttons: buttons},
		}
	case r.RequestLocation:
		msg.Type = "interactive"
		msg.Interactive = &interactive{
			Type:   "location_request_message",
			Body:   interactiveBody{Text: r.Text},
			Action: interactiveAction{Name: "send_location"},
		}
	default:
		msg.Type = "text"
		msg.Text = &TextBody{Body: r.Text}
	}
	return msg
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// SendReplies sends each reply in order and joins the failures.
func (c *Client) SendReplies(ctx context.Context, to string, replies []intake.Reply) error {
	var errs []error
	for _, r := range replies {
		if err := c.send(ctx, BuildMessage(to, r)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) send(ctx context.Context, msg any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("whatsapp rate limit: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("whatsapp API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// DownloadMedia fetches an inbound media object: first its short-lived URL,
// then the bytes behind it. Both calls carry the access token.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("whatsapp rate limit: %w", err)
	}

	raw, err := c.get(ctx, fmt.Sprintf("%s/%s", c.baseURL, mediaID), 64<<10)
	if err != nil {
		return nil, fmt.Errorf("failed to look up media %s: %w", mediaID, err)
	}
	var info mediaInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to decode media %s: %w", mediaID, err)
	}
	if info.URL == "" {
		return nil, fmt.Errorf("media %s has no download URL", mediaID)
	}

	data, err := c.get(ctx, info.URL, maxMediaBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to download media %s: %w", mediaID, err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}
