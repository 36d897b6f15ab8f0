package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"sonaged-backend/internal/config"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// MessageSender is the part of *messaging.Client the topic target uses.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMService pushes report notifications to a Firebase Cloud Messaging topic
// the dashboard apps subscribe to.
type FCMService struct {
	client MessageSender
	topic  string
}

// NewFCMService creates the service from base64 credentials (cloud
// deployments) or a credentials file. It returns nil, nil when neither is
// configured.
func NewFCMService(ctx context.Context, cfg config.FirebaseConfig) (*FCMService, error) {
	var opt option.ClientOption
	switch {
	case cfg.CredentialsBase64 != "":
		credentialsJSON, err := base64.StdEncoding.DecodeString(cfg.CredentialsBase64)
		if err != nil {
			return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(credentialsJSON)
	case cfg.CredentialsFile != "":
		opt = option.WithCredentialsFile(cfg.CredentialsFile)
	default:
		return nil, nil
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return NewFCMServiceWithClient(client, cfg.Topic), nil
}

func NewFCMServiceWithClient(client MessageSender, topic string) *FCMService {
	return &FCMService{client: client, topic: topic}
}

func (s *FCMService) Name() string { return "fcm_topic" }

// Deliver sends the report to the topic
func (s *FCMService) Deliver(ctx context.Context, n Notification) error {
	r := n.Report
	body := fmt.Sprintf("%s by %s: %s", r.Category, r.ReporterName, r.Description)
	if n.Address != "" {
		body = fmt.Sprintf("%s (%s)", body, n.Address)
	}

	message := &messaging.Message{
		Topic: s.topic,
		Notification: &messaging.Notification{
			Title: "🚨 New report",
			Body:  body,
		},
		Data: map[string]string{
			"type":      "report_created",
			"report_id": r.ID,
			"category":  r.Category,
			"latitude":  strconv.FormatFloat(r.Latitude, 'f', -1, 64),
			"longitude": strconv.FormatFloat(r.Longitude, 'f', -1, 64),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	response, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending FCM message: %w", err)
	}

	log.Debug().Str("message_id", response).Str("topic", s.topic).Msg("✅ FCM notification sent")
	return nil
}
