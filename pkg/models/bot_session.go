package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of one join attempt
type SessionStatus string

const (
	SessionStatusJoining   SessionStatus = "joining"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// ActiveStatuses are the statuses that hold a meeting against a second join
var ActiveStatuses = []SessionStatus{SessionStatusJoining, SessionStatusActive}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusJoining: {SessionStatusActive, SessionStatusFailed},
	SessionStatusActive:  {SessionStatusCompleted},
}

// IsTerminal reports whether no transition may leave s
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// IsActive reports whether s blocks another join of the same meeting
func (s SessionStatus) IsActive() bool {
	return s == SessionStatusJoining || s == SessionStatusActive
}

// Valid reports whether s is a known status
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusJoining, SessionStatusActive, SessionStatusCompleted, SessionStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether next directly follows s
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BotSession is the durable record of one attempt to join one meeting
type BotSession struct {
	ID             uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	WorkspaceID    string        `json:"workspace_id" gorm:"type:varchar(255);index:idx_bot_sessions_workspace_meeting,priority:1;not null"`
	MeetingID      string        `json:"meeting_id" gorm:"type:varchar(255);index:idx_bot_sessions_workspace_meeting,priority:2;not null"`
	MeetingTitle   string        `json:"meeting_title" gorm:"type:varchar(512)"`
	Platform       Platform      `json:"platform" gorm:"type:varchar(50)"`
	URL            string        `json:"url" gorm:"type:text"`
	Status         SessionStatus `json:"status" gorm:"type:varchar(50);index;not null"`
	JoinTime       *time.Time    `json:"join_time"`
	EndTime        *time.Time    `json:"end_time"`
	ScheduledStart time.Time     `json:"scheduled_start"`
	ScheduledEnd   time.Time     `json:"scheduled_end"`
	BotHandle      string        `json:"-" gorm:"type:varchar(255)"`
	ErrorMessage   string        `json:"error_message,omitempty" gorm:"type:text"`
	RecordingURL   *string       `json:"recording_url,omitempty" gorm:"type:text"`
	Transcript     *string       `json:"transcript,omitempty" gorm:"type:text"`
	AISummary      *string       `json:"ai_summary,omitempty" gorm:"type:text"`
	CreatedAt      time.Time     `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (BotSession) TableName() string {
	return "bot_sessions"
}

// NewBotSession builds a joining session for meeting at the attempt time
func NewBotSession(workspaceID string, meeting MeetingInfo, attemptAt time.Time) *BotSession {
	joinTime := attemptAt
	return &BotSession{
		ID:             uuid.New(),
		WorkspaceID:    workspaceID,
		MeetingID:      meeting.ID,
		MeetingTitle:   meeting.Title,
		Platform:       meeting.Platform,
		URL:            meeting.URL,
		Status:         SessionStatusJoining,
		JoinTime:       &joinTime,
		ScheduledStart: meeting.StartTime,
		ScheduledEnd:   meeting.EndTime,
	}
}

// String implements fmt.Stringer
func (s *BotSession) String() string {
	return "BotSession{workspace:" + s.WorkspaceID + ", meeting:" + s.MeetingID + ", status:" + string(s.Status) + "}"
}
