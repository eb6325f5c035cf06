package join

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jgirmay/meetingbot/pkg/models"
)

// LaunchRequest asks the automation service to put a bot into a meeting
type LaunchRequest struct {
	Platform   models.Platform   `json:"platform"`
	MeetingID  string            `json:"meeting_id"`
	URL        string            `json:"url"`
	BotName    string            `json:"bot_name"`
	Record     bool              `json:"record"`
	Transcribe bool              `json:"transcribe"`
	Params     map[string]string `json:"params"`
}

// Runner is the external automation that drives a meeting client
type Runner interface {
	// Launch returns once the bot is in the meeting
	Launch(ctx context.Context, req LaunchRequest) (handleID string, err error)

	// Terminate removes the bot from its meeting
	Terminate(ctx context.Context, handleID string) error
}

// HTTPRunner is a Runner backed by the automation service's HTTP API
type HTTPRunner struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPRunner creates a runner for the service at baseURL. timeout bounds
// a single launch, which can take as long as the meeting's lobby.
func NewHTTPRunner(baseURL, token string, timeout time.Duration) *HTTPRunner {
	return &HTTPRunner{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type launchResponse struct {
	HandleID string `json:"handle_id"`
	Error    string `json:"error,omitempty"`
}

// Launch posts the request and waits for the bot to be admitted
func (r *HTTPRunner) Launch(ctx context.Context, req LaunchRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", Failed(ReasonUnknown, err)
	}

	var body launchResponse
	if err := r.do(ctx, http.MethodPost, r.baseURL+"/v1/bots", payload, &body); err != nil {
		return "", err
	}
	if body.HandleID == "" {
		return "", Failed(ReasonUnknown, errors.New("runner returned no handle"))
	}
	return body.HandleID, nil
}

// Terminate asks the runner to leave the meeting. Unknown handles are ignored.
func (r *HTTPRunner) Terminate(ctx context.Context, handleID string) error {
	if handleID == "" {
		return nil
	}
	err := r.do(ctx, http.MethodDelete, r.baseURL+"/v1/bots/"+url.PathEscape(handleID), nil, nil)
	var failed *FailedError
	if errors.As(err, &failed) && errors.Is(failed.Err, errHandleGone) {
		return nil
	}
	return err
}

var errHandleGone = errors.New("handle not found")

func (r *HTTPRunner) do(ctx context.Context, method, target string, payload []byte, out interface{}) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return Failed(ReasonUnknown, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Failed(transportReason(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodDelete {
		return Failed(ReasonUnknown, errHandleGone)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body launchResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
		return Failed(reasonForStatus(resp.StatusCode), fmt.Errorf("runner status %d: %s", resp.StatusCode, body.Error))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Failed(ReasonUnknown, fmt.Errorf("decode runner response: %w", err))
	}
	return nil
}

func reasonForStatus(status int) Reason {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ReasonInvalidURL
	case http.StatusUnauthorized, http.StatusForbidden:
		return ReasonAuthRequired
	case http.StatusConflict, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return ReasonCapacityExceeded
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return ReasonTimeout
	default:
		return ReasonUnknown
	}
}

func transportReason(err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonUnknown
}
