// Package notify holds the best-effort side-notification channels that fire
// after a reminder email is confirmed sent. Their failures are logged by the
// scheduler and never affect the send outcome or the dedup record.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/kmilewski/zlot/internal/scheduler"
)

// TokenSource resolves a user's registered FCM device token. Implemented by
// the repository.
type TokenSource interface {
	FCMToken(ctx context.Context, userID uuid.UUID) (string, error)
}

// FCMSender delivers push notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
	tokens TokenSource
	logger *slog.Logger
}

var _ scheduler.PushSender = (*FCMSender)(nil)

// NewFCMSender initializes the Firebase app from a service account
// credentials file and returns a ready sender.
func NewFCMSender(ctx context.Context, credentialsFile string, tokens TokenSource, logger *slog.Logger) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("create messaging client: %w", err)
	}

	return &FCMSender{client: client, tokens: tokens, logger: logger}, nil
}

// Send pushes one notification to the user's registered device. A user
// without a token is a silent skip, not an error.
func (s *FCMSender) Send(ctx context.Context, userID uuid.UUID, n scheduler.PushNotification) error {
	token, err := s.tokens.FCMToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve device token: %w", err)
	}
	if token == "" {
		s.logger.Debug("no device token registered, skipping push", "user_id", userID)
		return nil
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: map[string]string{
			"link":      n.Link,
			"dedup_tag": n.DedupTag,
		},
		Android: &messaging.AndroidConfig{
			CollapseKey: n.DedupTag,
			Priority:    "high",
		},
	}

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("send fcm message: %w", err)
	}

	s.logger.Debug("push notification delivered", "user_id", userID, "message_id", id)
	return nil
}
