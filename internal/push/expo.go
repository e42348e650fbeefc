package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultExpoURL is the Expo push send endpoint.
const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

// ExpoSender sends through the Expo push service.
type ExpoSender struct {
	url         string
	accessToken string
	client      *http.Client
	logger      *slog.Logger
}

// NewExpoSender creates an Expo sender. accessToken is optional.
func NewExpoSender(url, accessToken string, logger *slog.Logger) *ExpoSender {
	if url == "" {
		url = DefaultExpoURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpoSender{
		url:         url,
		accessToken: accessToken,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

type expoMessage struct {
	To       string            `json:"to"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Send posts a single-message batch and inspects the returned ticket.
func (s *ExpoSender) Send(ctx context.Context, token string, msg Message) error {
	payload, err := json.Marshal([]expoMessage{{
		To:       token,
		Title:    msg.Title,
		Body:     msg.Body,
		Data:     msg.Data,
		Sound:    "default",
		Priority: "high",
	}})
	if err != nil {
		return fmt.Errorf("marshal expo message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.accessToken)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("expo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read expo response: %w", err)
	}

	var out expoResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(body, 200))
		if decodeErr == nil && len(out.Errors) > 0 {
			reason = out.Errors[0].Code + ": " + out.Errors[0].Message
		}
		return &RejectedError{Provider: ProviderExpo, Reason: reason}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode expo response: %w", decodeErr)
	}
	if len(out.Data) == 0 {
		return fmt.Errorf("expo response carried no ticket")
	}

	ticket := out.Data[0]
	if ticket.Status != "ok" {
		reason := ticket.Message
		if ticket.Details.Error != "" {
			reason = ticket.Details.Error + ": " + ticket.Message
		}
		return &RejectedError{Provider: ProviderExpo, Reason: reason}
	}

	s.logger.Debug("Expo push accepted", "ticket", ticket.ID, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
