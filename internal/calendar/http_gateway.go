package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jgirmay/meetingbot/internal/clock"
	"github.com/jgirmay/meetingbot/pkg/models"
)

// HTTPGateway talks to the calendar integration service over HTTP
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
	clock   clock.Clock
}

// HTTPGatewayConfig configures an HTTPGateway
type HTTPGatewayConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	Client   *http.Client
	Clock    clock.Clock
}

// NewHTTPGateway creates a gateway for the integration service at cfg.BaseURL
func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.APIToken,
		client:  client,
		clock:   c,
	}
}

type integrationResponse struct {
	Connected bool   `json:"connected"`
	Provider  string `json:"provider"`
}

type eventsResponse struct {
	Events []Event `json:"events"`
}

// IsConnected checks the integration record of the workspace
func (g *HTTPGateway) IsConnected(ctx context.Context, workspaceID string) (bool, error) {
	var body integrationResponse
	status, err := g.get(ctx, g.workspaceURL(workspaceID, "integration"), &body)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return body.Connected, nil
}

// ListUpcomingEvents fetches events in [now, now+Window) and converts them
func (g *HTTPGateway) ListUpcomingEvents(ctx context.Context, workspaceID string) ([]models.MeetingInfo, error) {
	now := g.clock.Now().UTC()

	query := url.Values{}
	query.Set("time_min", now.Format(time.RFC3339))
	query.Set("time_max", now.Add(Window).Format(time.RFC3339))

	var body eventsResponse
	if _, err := g.get(ctx, g.workspaceURL(workspaceID, "events")+"?"+query.Encode(), &body); err != nil {
		return nil, err
	}
	return ToMeetings(body.Events), nil
}

func (g *HTTPGateway) workspaceURL(workspaceID, resource string) string {
	return fmt.Sprintf("%s/v1/workspaces/%s/%s", g.baseURL, url.PathEscape(workspaceID), resource)
}

// get performs the request and decodes a 2xx body into out. The status code
// is returned even when err is set so callers can special-case it.
func (g *HTTPGateway) get(ctx context.Context, target string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, &UnavailableError{Kind: KindProvider, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, &UnavailableError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &UnavailableError{
			Kind: kindForStatus(resp.StatusCode),
			Err:  fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, &UnavailableError{Kind: KindProvider, Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.StatusCode, nil
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindProvider
	}
}

// KindOf returns the kind of an UnavailableError in err's chain
func KindOf(err error) (Kind, bool) {
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return unavailable.Kind, true
	}
	return "", false
}
