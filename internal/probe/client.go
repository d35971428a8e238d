package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/okian/padmon/internal/adapters/auth"
	"github.com/okian/padmon/internal/adapters/http/api"
	"github.com/okian/padmon/internal/domain/analytics"
	"github.com/okian/padmon/internal/domain/model"
)

// Submission outcomes.
const (
	ResultAccepted  = "accepted"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
)

const (
	retryCount   = 3
	retryWait    = 200 * time.Millisecond
	retryMaxWait = 2 * time.Second
)

// ErrUnexpectedStatus is returned when the service answers with a status the
// probe does not expect.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Client talks to the padmon HTTP API.
type Client struct {
	http  *resty.Client
	token string
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryMaxWait).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// Token returns the session token set by SignIn.
func (c *Client) Token() string { return c.token }

func statusError(op string, resp *resty.Response) error {
	return fmt.Errorf("%s: %w %d: %s", op, ErrUnexpectedStatus, resp.StatusCode(), resp.String())
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return statusError("health", resp)
	}
	return nil
}

// SignIn creates the account on first use and signs in otherwise.
func (c *Client) SignIn(ctx context.Context, email, password string) (auth.Session, error) {
	body := map[string]string{"email": email, "password": password, "displayName": "probe"}

	var sess auth.Session
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&sess).Post("/auth/signup")
	if err != nil {
		return auth.Session{}, fmt.Errorf("sign up: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusCreated:
	case http.StatusConflict:
		resp, err = c.http.R().SetContext(ctx).SetBody(body).SetResult(&sess).Post("/auth/signin")
		if err != nil {
			return auth.Session{}, fmt.Errorf("sign in: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return auth.Session{}, statusError("sign in", resp)
		}
	default:
		return auth.Session{}, statusError("sign up", resp)
	}
	c.token = sess.Token
	return sess, nil
}

// Submit posts one measurement and classifies the outcome.
func (c *Client) Submit(ctx context.Context, m model.Measurement) (string, error) {
	var ack api.IngestResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetBody(m).
		SetResult(&ack).
		Post("/readings")
	if err != nil {
		return ResultFailed, fmt.Errorf("submit: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusAccepted:
		return ResultAccepted, nil
	case http.StatusOK:
		return ResultDuplicate, nil
	default:
		return ResultFailed, statusError("submit", resp)
	}
}

// Readings fetches GET /readings.
func (c *Client) Readings(ctx context.Context, limit int) (api.ReadingsResponse, error) {
	var out api.ReadingsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprint(limit)).
		SetResult(&out).
		Get("/readings")
	if err != nil {
		return api.ReadingsResponse{}, fmt.Errorf("readings: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return api.ReadingsResponse{}, statusError("readings", resp)
	}
	return out, nil
}

// Analytics fetches GET /analytics for r.
func (c *Client) Analytics(ctx context.Context, r analytics.Range) (analytics.Stats, error) {
	var out analytics.Stats
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("range", string(r)).
		SetResult(&out).
		Get("/analytics")
	if err != nil {
		return analytics.Stats{}, fmt.Errorf("analytics: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return analytics.Stats{}, statusError("analytics", resp)
	}
	return out, nil
}
