package join

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jgirmay/meetingbot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRunner_Launch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/bots", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req LaunchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.PlatformGoogleMeet, req.Platform)
		assert.Equal(t, "abc-defg-hij", req.Params["meeting_code"])

		_ = json.NewEncoder(w).Encode(launchResponse{HandleID: "bot-42"})
	}))
	defer server.Close()

	runner := NewHTTPRunner(server.URL, "tok", time.Second)
	id, err := runner.Launch(context.Background(), LaunchRequest{
		Platform:  models.PlatformGoogleMeet,
		MeetingID: "m-1",
		Params:    map[string]string{"meeting_code": "abc-defg-hij"},
	})
	require.NoError(t, err)
	assert.Equal(t, "bot-42", id)
}

func TestHTTPRunner_StatusReasons(t *testing.T) {
	tests := []struct {
		status int
		reason Reason
	}{
		{http.StatusBadRequest, ReasonInvalidURL},
		{http.StatusUnprocessableEntity, ReasonInvalidURL},
		{http.StatusUnauthorized, ReasonAuthRequired},
		{http.StatusForbidden, ReasonAuthRequired},
		{http.StatusConflict, ReasonCapacityExceeded},
		{http.StatusTooManyRequests, ReasonCapacityExceeded},
		{http.StatusServiceUnavailable, ReasonCapacityExceeded},
		{http.StatusGatewayTimeout, ReasonTimeout},
		{http.StatusInternalServerError, ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(launchResponse{Error: "nope"})
			}))
			defer server.Close()

			_, err := NewHTTPRunner(server.URL, "", time.Second).Launch(context.Background(), LaunchRequest{})
			require.Error(t, err)
			assert.Equal(t, tt.reason, ReasonOf(err))
		})
	}
}

func TestHTTPRunner_LaunchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPRunner(server.URL, "", 5*time.Second).Launch(ctx, LaunchRequest{})
	require.Error(t, err)
	assert.Equal(t, ReasonTimeout, ReasonOf(err))
}

func TestHTTPRunner_Terminate(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/v1/bots/gone" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	runner := NewHTTPRunner(server.URL, "", time.Second)
	require.NoError(t, runner.Terminate(context.Background(), "bot-1"))
	require.NoError(t, runner.Terminate(context.Background(), "gone"))
	require.NoError(t, runner.Terminate(context.Background(), ""))
	assert.Equal(t, []string{"/v1/bots/bot-1", "/v1/bots/gone"}, paths)
}
