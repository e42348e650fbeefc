package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	fcm "google.golang.org/api/fcm/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// FCMSender sends through the Firebase Cloud Messaging HTTP v1 API.
type FCMSender struct {
	svc    *fcm.Service
	parent string
	logger *slog.Logger
}

// NewFCMSender creates an FCM sender authenticated with a service account
// credentials file. Extra client options (endpoint, HTTP client) are
// appended after the credentials.
func NewFCMSender(ctx context.Context, projectID, credentialsFile string, logger *slog.Logger, opts ...option.ClientOption) (*FCMSender, error) {
	if projectID == "" {
		return nil, fmt.Errorf("fcm: project id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	all := make([]option.ClientOption, 0, len(opts)+1)
	if credentialsFile != "" {
		all = append(all, option.WithCredentialsFile(credentialsFile))
	}
	all = append(all, opts...)

	svc, err := fcm.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create fcm service: %w", err)
	}
	return &FCMSender{svc: svc, parent: "projects/" + projectID, logger: logger}, nil
}

// Send delivers one message. Any non-2xx answer is a rejection; only
// transport failures are transient.
func (s *FCMSender) Send(ctx context.Context, token string, msg Message) error {
	req := &fcm.SendMessageRequest{
		Message: &fcm.Message{
			Token: token,
			Notification: &fcm.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Data: msg.Data,
		},
	}

	resp, err := s.svc.Projects.Messages.Send(s.parent, req).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code != 0 {
			return &RejectedError{Provider: ProviderFCM, Reason: fmt.Sprintf("%d %s", gerr.Code, gerr.Message)}
		}
		return fmt.Errorf("fcm send: %w", err)
	}

	s.logger.Debug("FCM push accepted", "message", resp.Name)
	return nil
}
