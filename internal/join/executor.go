// Package join hands resolved meetings to the platform automation that puts
// a bot into the call.
package join

import (
	"context"
	"errors"
	"fmt"

	"github.com/jgirmay/meetingbot/pkg/models"
)

// ErrUnsupportedPlatform is returned for meetings no executor can join
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Reason explains a failed join
type Reason string

const (
	ReasonInvalidURL       Reason = "invalid_url"
	ReasonAuthRequired     Reason = "auth_required"
	ReasonCapacityExceeded Reason = "capacity_exceeded"
	ReasonTimeout          Reason = "timeout"
	ReasonUnknown          Reason = "unknown"
)

// FailedError is returned by executors when a join did not succeed
type FailedError struct {
	Reason Reason
	Err    error
}

func (e *FailedError) Error() string {
	if e.Err == nil {
		return "join failed: " + string(e.Reason)
	}
	return fmt.Sprintf("join failed: %s: %v", e.Reason, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Failed builds a FailedError
func Failed(reason Reason, err error) error {
	return &FailedError{Reason: reason, Err: err}
}

// ReasonOf returns the failure reason carried by err, or ReasonUnknown
func ReasonOf(err error) Reason {
	var failed *FailedError
	if errors.As(err, &failed) {
		return failed.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonUnknown
}

// Handle identifies a bot that is inside a meeting
type Handle struct {
	ID        string          `json:"id"`
	Platform  models.Platform `json:"platform"`
	MeetingID string          `json:"meeting_id"`
}

// Executor joins and leaves meetings on one or more platforms
type Executor interface {
	Join(ctx context.Context, meeting models.MeetingInfo, settings models.BotSettings) (Handle, error)
	Leave(ctx context.Context, handle Handle) error
}

// Dispatcher selects the executor for a meeting's platform
type Dispatcher struct {
	executors map[models.Platform]Executor
}

// NewDispatcher creates a dispatcher from a platform lookup table
func NewDispatcher(executors map[models.Platform]Executor) *Dispatcher {
	table := make(map[models.Platform]Executor, len(executors))
	for p, e := range executors {
		table[p] = e
	}
	return &Dispatcher{executors: table}
}

// NewPlatformDispatcher wires the Zoom, Teams and Google Meet executors to runner
func NewPlatformDispatcher(runner Runner) *Dispatcher {
	return NewDispatcher(map[models.Platform]Executor{
		models.PlatformZoom:       NewZoom(runner),
		models.PlatformTeams:      NewTeams(runner),
		models.PlatformGoogleMeet: NewGoogleMeet(runner),
	})
}

// Join routes the meeting to its platform executor
func (d *Dispatcher) Join(ctx context.Context, meeting models.MeetingInfo, settings models.BotSettings) (Handle, error) {
	executor, ok := d.executors[meeting.Platform]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, meeting.Platform)
	}
	return executor.Join(ctx, meeting, settings)
}

// Leave routes the handle to the executor that created it
func (d *Dispatcher) Leave(ctx context.Context, handle Handle) error {
	executor, ok := d.executors[handle.Platform]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedPlatform, handle.Platform)
	}
	return executor.Leave(ctx, handle)
}
