package whatsapp

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"sonaged-backend/internal/intake"
	"sonaged-backend/internal/models"
)

// IdentityPrefix namespaces WhatsApp users among conversation identities.
const IdentityPrefix = "whatsapp:"

// WebhookPayload is the Cloud API notification envelope.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *TextBody    `json:"text,omitempty"`
	Image       *Media       `json:"image,omitempty"`
	Location    *Location    `json:"location,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Button      *ButtonReply `json:"button,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

// Location keeps coordinates raw: clients have been seen sending strings.
type Location struct {
	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
	Name      string          `json:"name"`
	Address   string          `json:"address"`
}

type Interactive struct {
	Type        string     `json:"type"`
	ButtonReply *ReplyItem `json:"button_reply,omitempty"`
	ListReply   *ReplyItem `json:"list_reply,omitempty"`
}

type ReplyItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ButtonReply is a quick-reply tap on a template message.
type ButtonReply struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// Identity returns the conversation identity of a WhatsApp user.
func Identity(waID string) string {
	return IdentityPrefix + waID
}

// Normalize extracts every message of the notification as an inbound event.
// Status callbacks and unsupported message types are dropped.
func (p WebhookPayload) Normalize() []intake.Inbound {
	var events []intake.Inbound
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				payload, ok := m.payload()
				if !ok || m.From == "" {
					continue
				}
				events = append(events, intake.Inbound{
					Identity:     Identity(m.From),
					ReporterName: names[m.From],
					Channel:      models.ChannelWhatsApp,
					Payload:      payload,
				})
			}
		}
	}
	return events
}

func (m Message) payload() (intake.Payload, bool) {
	switch m.Type {
	case "text":
		if m.Text == nil {
			return nil, false
		}
		return intake.Text{Value: m.Text.Body}, true
	case "image":
		if m.Image == nil || m.Image.ID == "" {
			return nil, false
		}
		return intake.Photo{Ref: m.Image.ID}, true
	case "location":
		if m.Location == nil {
			return intake.Location{}, true
		}
		return intake.Location{
			Latitude:  rawCoordinate(m.Location.Latitude),
			Longitude: rawCoordinate(m.Location.Longitude),
		}, true
	case "interactive":
		if m.Interactive == nil {
			return nil, false
		}
		switch {
		case m.Interactive.ButtonReply != nil:
			return intake.Button{ID: m.Interactive.ButtonReply.ID}, true
		case m.Interactive.ListReply != nil:
			return intake.Button{ID: m.Interactive.ListReply.ID}, true
		}
	case "button":
		if m.Button == nil {
			return nil, false
		}
		if m.Button.Payload != "" {
			return intake.Button{ID: m.Button.Payload}, true
		}
		return intake.Text{Value: m.Button.Text}, true
	}
	return nil, false
}

// rawCoordinate accepts a JSON number or a numeric string. Anything else,
// null included, is treated as missing.
func rawCoordinate(raw json.RawMessage) *float64 {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	raw = trimmed
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}
