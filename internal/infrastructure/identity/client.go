// Package identity is the HTTP client for the remote identity service's
// backend API. It is safe for concurrent use by all in-flight workers and
// surfaces HTTP 429 responses as the domain throttling signal.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domain "github.com/mohammadpnp/user-migrate/internal/domain/user"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.clerk.com"
	defaultTimeout = 30 * time.Second

	// used when a throttling response carries no usable Retry-After header
	defaultRetryAfter = 10 * time.Second
)

type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	logger    *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    logger.Named("identity"),
	}
}

type remoteUser struct {
	ID string `json:"id"`
}

type createUserRequest struct {
	ExternalID      string         `json:"external_id,omitempty"`
	FirstName       string         `json:"first_name,omitempty"`
	LastName        string         `json:"last_name,omitempty"`
	Username        string         `json:"username,omitempty"`
	EmailAddress    []string       `json:"email_address"`
	PasswordDigest  string         `json:"password_digest,omitempty"`
	PasswordHasher  string         `json:"password_hasher,omitempty"`
	UnsafeMetadata  map[string]any `json:"unsafe_metadata,omitempty"`
	PublicMetadata  map[string]any `json:"public_metadata,omitempty"`
	PrivateMetadata map[string]any `json:"private_metadata,omitempty"`
}

type updateUserRequest struct {
	PrimaryEmailVerified *bool  `json:"primary_email_verified,omitempty"`
	PasswordDigest       string `json:"password_digest,omitempty"`
	PasswordHasher       string `json:"password_hasher,omitempty"`
}

func (c *Client) CreateUser(ctx context.Context, params domain.CreateUserParams) (domain.RemoteUser, error) {
	body := createUserRequest{
		ExternalID:      params.ExternalID,
		FirstName:       params.FirstName,
		LastName:        params.LastName,
		Username:        params.Username,
		EmailAddress:    []string{params.EmailAddress},
		PasswordDigest:  params.PasswordDigest,
		PasswordHasher:  string(params.PasswordHasher),
		UnsafeMetadata:  params.UnsafeMetadata,
		PublicMetadata:  params.PublicMetadata,
		PrivateMetadata: params.PrivateMetadata,
	}

	var out remoteUser
	if err := c.do(ctx, http.MethodPost, "/v1/users", body, &out); err != nil {
		return domain.RemoteUser{}, fmt.Errorf("create user: %w", err)
	}
	return domain.RemoteUser{ID: out.ID}, nil
}

func (c *Client) ListUsersByEmail(ctx context.Context, email string) ([]domain.RemoteUser, error) {
	path := "/v1/users?email_address=" + url.QueryEscape(email)

	var out []remoteUser
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list users by email: %w", err)
	}

	users := make([]domain.RemoteUser, len(out))
	for i, u := range out {
		users[i] = domain.RemoteUser{ID: u.ID}
	}
	return users, nil
}

func (c *Client) UpdateUser(ctx context.Context, userID string, params domain.UpdateUserParams) (domain.RemoteUser, error) {
	body := updateUserRequest{
		PrimaryEmailVerified: params.EmailVerified,
		PasswordDigest:       params.PasswordDigest,
		PasswordHasher:       string(params.PasswordHasher),
	}

	var out remoteUser
	if err := c.do(ctx, http.MethodPatch, "/v1/users/"+url.PathEscape(userID), body, &out); err != nil {
		return domain.RemoteUser{}, fmt.Errorf("update user %s: %w", userID, err)
	}
	return domain.RemoteUser{ID: out.ID}, nil
}

type apiErrorBody struct {
	Errors []struct {
		Message     string `json:"message"`
		LongMessage string `json:"long_message"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		retryAfter := retryAfterFrom(resp)
		// query strings carry addresses, keep them out of the logs
		c.logger.Warn("throttled by identity service",
			zap.String("path", strings.SplitN(path, "?", 2)[0]),
			zap.Duration("retry_after", retryAfter))
		return &domain.RateLimitError{RetryAfter: retryAfter}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, apiErrorMessage(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func apiErrorMessage(raw []byte) string {
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Errors) > 0 {
		if body.Errors[0].LongMessage != "" {
			return body.Errors[0].LongMessage
		}
		return body.Errors[0].Message
	}
	return strings.TrimSpace(string(raw))
}

func retryAfterFrom(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}
