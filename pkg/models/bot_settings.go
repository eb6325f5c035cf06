package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBotName is shown in the meeting when settings carry no name
const DefaultBotName = "Meeting Assistant"

// maxMinutes bounds the join/leave offsets to one day
const maxMinutes = 24 * 60

// BotSettings is the per-workspace configuration a running bot snapshots
type BotSettings struct {
	Enabled           bool   `json:"enabled"`
	AutoJoin          bool   `json:"auto_join"`
	RecordMeetings    bool   `json:"record_meetings"`
	TranscribeAudio   bool   `json:"transcribe_audio"`
	JoinBeforeMinutes int    `json:"join_before_minutes"`
	LeaveAfterMinutes int    `json:"leave_after_minutes"`
	BotName           string `json:"bot_name,omitempty"`
}

// Validate rejects negative or absurd offsets
func (s BotSettings) Validate() error {
	if s.JoinBeforeMinutes < 0 || s.JoinBeforeMinutes > maxMinutes {
		return fmt.Errorf("join_before_minutes must be between 0 and %d, got %d", maxMinutes, s.JoinBeforeMinutes)
	}
	if s.LeaveAfterMinutes < 0 || s.LeaveAfterMinutes > maxMinutes {
		return fmt.Errorf("leave_after_minutes must be between 0 and %d, got %d", maxMinutes, s.LeaveAfterMinutes)
	}
	return nil
}

// DisplayName returns the trimmed bot name or the default
func (s BotSettings) DisplayName() string {
	if name := strings.TrimSpace(s.BotName); name != "" {
		return name
	}
	return DefaultBotName
}

// WorkspaceBotSettings persists the last settings accepted for a workspace
// so bots can be restored after a restart
type WorkspaceBotSettings struct {
	WorkspaceID       string    `json:"workspace_id" gorm:"type:varchar(255);primaryKey"`
	Enabled           bool      `json:"enabled" gorm:"index"`
	AutoJoin          bool      `json:"auto_join"`
	RecordMeetings    bool      `json:"record_meetings"`
	TranscribeAudio   bool      `json:"transcribe_audio"`
	JoinBeforeMinutes int       `json:"join_before_minutes"`
	LeaveAfterMinutes int       `json:"leave_after_minutes"`
	BotName           string    `json:"bot_name" gorm:"type:varchar(255)"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (WorkspaceBotSettings) TableName() string {
	return "workspace_bot_settings"
}

// NewWorkspaceBotSettings builds the persisted row for settings
func NewWorkspaceBotSettings(workspaceID string, s BotSettings) *WorkspaceBotSettings {
	return &WorkspaceBotSettings{
		WorkspaceID:       workspaceID,
		Enabled:           s.Enabled,
		AutoJoin:          s.AutoJoin,
		RecordMeetings:    s.RecordMeetings,
		TranscribeAudio:   s.TranscribeAudio,
		JoinBeforeMinutes: s.JoinBeforeMinutes,
		LeaveAfterMinutes: s.LeaveAfterMinutes,
		BotName:           s.BotName,
	}
}

// Settings returns the snapshot a bot runs with
func (w *WorkspaceBotSettings) Settings() BotSettings {
	return BotSettings{
		Enabled:           w.Enabled,
		AutoJoin:          w.AutoJoin,
		RecordMeetings:    w.RecordMeetings,
		TranscribeAudio:   w.TranscribeAudio,
		JoinBeforeMinutes: w.JoinBeforeMinutes,
		LeaveAfterMinutes: w.LeaveAfterMinutes,
		BotName:           w.BotName,
	}
}
