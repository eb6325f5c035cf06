// Package calendar lists upcoming meetings for a workspace from the external
// calendar integration service.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jgirmay/meetingbot/pkg/models"
)

// Window is how far ahead of now ListUpcomingEvents looks
const Window = 24 * time.Hour

var (
	// ErrCalendarUnavailable is matched by every UnavailableError
	ErrCalendarUnavailable = errors.New("calendar unavailable")

	// ErrCalendarNotConnected means the workspace has no calendar integration
	ErrCalendarNotConnected = errors.New("calendar not connected")
)

// Kind classifies why the calendar could not be asked
type Kind string

const (
	KindAuth        Kind = "auth"
	KindRateLimited Kind = "rate_limited"
	KindNetwork     Kind = "network"
	KindProvider    Kind = "provider"
)

// UnavailableError distinguishes "could not ask" from "no meetings"
type UnavailableError struct {
	Kind Kind
	Err  error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("calendar unavailable (%s)", e.Kind)
	}
	return fmt.Sprintf("calendar unavailable (%s): %v", e.Kind, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCalendarUnavailable) true for any kind
func (e *UnavailableError) Is(target error) bool {
	return target == ErrCalendarUnavailable
}

// Gateway is the calendar collaborator of a workspace bot
type Gateway interface {
	// IsConnected reports whether the workspace has a calendar integration.
	// A failure to ask is returned as an UnavailableError.
	IsConnected(ctx context.Context, workspaceID string) (bool, error)

	// ListUpcomingEvents returns joinable meetings starting within Window of
	// now. It does not retry.
	ListUpcomingEvents(ctx context.Context, workspaceID string) ([]models.MeetingInfo, error)
}
