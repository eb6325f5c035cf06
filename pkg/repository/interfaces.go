package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jgirmay/meetingbot/pkg/models"
)

var (
	// ErrNotFound is returned when a session or settings row does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSession is returned when a joining or active session already
	// exists for the same workspace and meeting
	ErrDuplicateSession = errors.New("active session already exists for meeting")

	// ErrInvalidTransition is returned when a status change does not follow
	// joining -> active -> completed or joining -> failed
	ErrInvalidTransition = errors.New("invalid session status transition")
)

// SessionUpdate carries the fields written alongside a status change.
// Zero values are left untouched.
type SessionUpdate struct {
	JoinTime     *time.Time
	EndTime      *time.Time
	ErrorMessage string
	BotHandle    string
}

// Artifacts are produced after a meeting by recording and summarization
// services. Nil fields are left untouched.
type Artifacts struct {
	RecordingURL *string `json:"recording_url"`
	Transcript   *string `json:"transcript"`
	AISummary    *string `json:"ai_summary"`
}

// BotSessionRepository defines operations for bot sessions
type BotSessionRepository interface {
	// CreateSession records a joining session. Fails with ErrDuplicateSession if
	// the meeting already has a joining or active session in the workspace.
	CreateSession(ctx context.Context, workspaceID string, meeting models.MeetingInfo, attemptAt time.Time) (*models.BotSession, error)

	// UpdateStatus moves a session forward. Fails with ErrNotFound or
	// ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus, update SessionUpdate) error

	// ListActiveSessions retrieves joining and active sessions of a workspace
	ListActiveSessions(ctx context.Context, workspaceID string) ([]*models.BotSession, error)

	// GetByID retrieves a session by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.BotSession, error)

	// ListByWorkspace retrieves the most recent sessions of a workspace
	ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*models.BotSession, error)

	// FindByMeeting retrieves every session ever created for a meeting
	FindByMeeting(ctx context.Context, workspaceID, meetingID string) ([]*models.BotSession, error)

	// AttachArtifacts stores recording, transcript and summary references
	AttachArtifacts(ctx context.Context, id uuid.UUID, artifacts Artifacts) error
}

// WorkspaceBotSettingsRepository defines operations for persisted bot settings
type WorkspaceBotSettingsRepository interface {
	// Save inserts or replaces the settings of a workspace
	Save(ctx context.Context, workspaceID string, settings models.BotSettings) error

	// Get retrieves the settings of a workspace
	Get(ctx context.Context, workspaceID string) (*models.WorkspaceBotSettings, error)

	// ListEnabled retrieves every workspace whose bot should be running
	ListEnabled(ctx context.Context) ([]*models.WorkspaceBotSettings, error)

	// SetEnabled flips the enabled flag; a missing workspace is not an error
	SetEnabled(ctx context.Context, workspaceID string, enabled bool) error
}
