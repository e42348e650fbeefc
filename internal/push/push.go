// Package push delivers a notification to one device token. Providers:
// Expo push service, Firebase Cloud Messaging HTTP v1, and a log-only
// sender for local development.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Provider names accepted by New.
const (
	ProviderExpo = "expo"
	ProviderFCM  = "fcm"
	ProviderLog  = "log"
)

// ErrRejected marks a send the provider refused (bad token, unregistered
// device, invalid payload). Retrying the same request will not help.
var ErrRejected = errors.New("push rejected")

// Message is the notification content sent to a device.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender delivers a message to one device token. A nil error means the
// provider accepted the message.
type Sender interface {
	Send(ctx context.Context, token string, msg Message) error
}

// RejectedError carries the provider's reason for a rejection.
type RejectedError struct {
	Provider string
	Reason   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected push: %s", e.Provider, e.Reason)
}

// Is reports ErrRejected equivalence.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Options selects and configures a provider.
type Options struct {
	Provider           string
	ExpoURL            string
	ExpoAccessToken    string
	FCMCredentialsFile string
	FCMProjectID       string
}

// New builds the Sender named by opts.Provider.
func New(ctx context.Context, opts Options, logger *slog.Logger) (Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch opts.Provider {
	case ProviderExpo:
		return NewExpoSender(opts.ExpoURL, opts.ExpoAccessToken, logger), nil
	case ProviderFCM:
		return NewFCMSender(ctx, opts.FCMProjectID, opts.FCMCredentialsFile, logger)
	case ProviderLog, "":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown push provider %q", opts.Provider)
	}
}
