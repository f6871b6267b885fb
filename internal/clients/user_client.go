package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/apperrors"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/config"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/models"
)

// HTTPUserClient resolves users through the user directory service.
type HTTPUserClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewHTTPUserClient(cfg config.ServiceConfig, logger zerolog.Logger) *HTTPUserClient {
	return &HTTPUserClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "user-client").Logger(),
	}
}

// FindByID retrieves a user by id.
func (c *HTTPUserClient) FindByID(ctx context.Context, userID string) (*models.User, error) {
	url := fmt.Sprintf("%s/api/users/%s", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Internal("failed to build user request", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("user_id", userID).Msg("user lookup failed")
		return nil, apperrors.Internal("user directory unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("user %s not found", userID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Internal(fmt.Sprintf("user directory returned status %d", resp.StatusCode), nil)
	}

	var user models.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, apperrors.Internal("failed to decode user", err)
	}

	return &user, nil
}

func (c *HTTPUserClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
