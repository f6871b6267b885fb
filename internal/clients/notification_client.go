package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/config"
)

// Notification is the payload accepted by the notification service.
type Notification struct {
	UserID   string `json:"user_id"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Link     string `json:"link"`
}

// HTTPNotificationClient emits user notifications over HTTP. Delivery is
// best-effort; callers log failures and move on.
type HTTPNotificationClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewHTTPNotificationClient(cfg config.ServiceConfig, logger zerolog.Logger) *HTTPNotificationClient {
	return &HTTPNotificationClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "notification-client").Logger(),
	}
}

// Create sends a notification to a user.
func (c *HTTPNotificationClient) Create(ctx context.Context, userID, title, message, category, link string) error {
	body, err := json.Marshal(Notification{
		UserID:   userID,
		Title:    title,
		Message:  message,
		Category: category,
		Link:     link,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/notifications", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("user_id", userID).Str("title", title).Msg("failed to send notification")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}

	return nil
}
