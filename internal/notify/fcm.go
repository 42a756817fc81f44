package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

const DefaultTopicPrefix = "invoices-"

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM pushes to a per-user topic.
type FCM struct {
	client messageSender
	prefix string
}

func NewFCM(ctx context.Context, topicPrefix string, opts ...option.ClientOption) (*FCM, error) {
	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}
	return newFCM(client, topicPrefix), nil
}

func newFCM(client messageSender, prefix string) *FCM {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &FCM{client: client, prefix: prefix}
}

func (f *FCM) Notify(ctx context.Context, userID string, invoiceCount int) error {
	msg := &messaging.Message{
		Topic: f.Topic(userID),
		Notification: &messaging.Notification{
			Title: subject(invoiceCount),
			Body:  "Open the app to review them.",
		},
		Data: map[string]string{
			"user_id": userID,
			"count":   strconv.Itoa(invoiceCount),
		},
	}
	if _, err := f.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send FCM message: %w", err)
	}
	return nil
}

// Topic maps a user id onto the topic charset [a-zA-Z0-9-_.~%].
func (f *FCM) Topic(userID string) string {
	var b strings.Builder
	b.WriteString(f.prefix)
	for _, r := range userID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', strings.ContainsRune("-_.~%", r):
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
