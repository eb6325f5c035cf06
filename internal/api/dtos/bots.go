package dtos

import (
	"time"

	"github.com/jgirmay/meetingbot/pkg/models"
)

// ============================================================================
// Bot control DTOs
// ============================================================================

// StartBotRequest starts or reconfigures the bot of a workspace
type StartBotRequest struct {
	WorkspaceID string              `json:"workspace_id" binding:"required"`
	Settings    *models.BotSettings `json:"settings" binding:"required"`
}

// StopBotRequest stops the bot of a workspace
type StopBotRequest struct {
	WorkspaceID string `json:"workspace_id" binding:"required"`
}

// BotActionResponse acknowledges a start or stop
type BotActionResponse struct {
	Success     bool   `json:"success"`
	WorkspaceID string `json:"workspace_id"`
	Running     bool   `json:"running"`
}

// BotStatusResponse represents a running bot in API responses
type BotStatusResponse struct {
	WorkspaceID string             `json:"workspace_id"`
	Settings    models.BotSettings `json:"settings"`
	StartedAt   time.Time          `json:"started_at"`
	LastTick    *time.Time         `json:"last_tick,omitempty"`
	TickCount   int64              `json:"tick_count"`
	InFlight    int                `json:"in_flight"`
	LastError   string             `json:"last_error,omitempty"`
}

// ============================================================================
// Session DTOs
// ============================================================================

// SessionResponse represents a bot session in API responses
type SessionResponse struct {
	ID           string     `json:"id"`
	WorkspaceID  string     `json:"workspace_id"`
	MeetingID    string     `json:"meeting_id"`
	MeetingTitle string     `json:"meeting_title"`
	Platform     string     `json:"platform"`
	URL          string     `json:"url"`
	Status       string     `json:"status"`
	JoinTime     *time.Time `json:"join_time"`
	EndTime      *time.Time `json:"end_time"`
	ScheduledEnd time.Time  `json:"scheduled_end"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RecordingURL *string    `json:"recording_url,omitempty"`
	Transcript   *string    `json:"transcript,omitempty"`
	AISummary    *string    `json:"ai_summary,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NewSessionResponse converts a stored session
func NewSessionResponse(s *models.BotSession) *SessionResponse {
	return &SessionResponse{
		ID:           s.ID.String(),
		WorkspaceID:  s.WorkspaceID,
		MeetingID:    s.MeetingID,
		MeetingTitle: s.MeetingTitle,
		Platform:     string(s.Platform),
		URL:          s.URL,
		Status:       string(s.Status),
		JoinTime:     s.JoinTime,
		EndTime:      s.EndTime,
		ScheduledEnd: s.ScheduledEnd,
		ErrorMessage: s.ErrorMessage,
		RecordingURL: s.RecordingURL,
		Transcript:   s.Transcript,
		AISummary:    s.AISummary,
		CreatedAt:    s.CreatedAt,
	}
}

// AttachArtifactsRequest carries artifacts produced after a meeting
type AttachArtifactsRequest struct {
	RecordingURL *string `json:"recording_url"`
	Transcript   *string `json:"transcript"`
	AISummary    *string `json:"ai_summary"`
}

// Empty reports whether the request sets nothing
func (r AttachArtifactsRequest) Empty() bool {
	return r.RecordingURL == nil && r.Transcript == nil && r.AISummary == nil
}

// ============================================================================
// Common Response DTOs
// ============================================================================

// ErrorResponse represents an error in API responses
type ErrorResponse struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Timestamp  time.Time `json:"timestamp"`
}

// ListResponse represents a list response
type ListResponse struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
}
