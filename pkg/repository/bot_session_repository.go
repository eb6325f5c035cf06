package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jgirmay/meetingbot/pkg/models"
	"gorm.io/gorm"
)

// activeMeetingIndex backs the one-active-session-per-meeting rule across
// processes. Both sqlite and postgres support partial unique indexes.
const activeMeetingIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_bot_sessions_active_meeting
	ON bot_sessions (workspace_id, meeting_id)
	WHERE status IN ('joining', 'active')`

// BotSessionRepositoryImpl implements BotSessionRepository
type BotSessionRepositoryImpl struct {
	db *gorm.DB
}

// NewBotSessionRepository creates a new bot session repository
func NewBotSessionRepository(db *gorm.DB) BotSessionRepository {
	return &BotSessionRepositoryImpl{db: db}
}

func activeStatusValues() []string {
	values := make([]string, 0, len(models.ActiveStatuses))
	for _, s := range models.ActiveStatuses {
		values = append(values, string(s))
	}
	return values
}

// CreateSession creates a joining session if the meeting has no active one
func (r *BotSessionRepositoryImpl) CreateSession(ctx context.Context, workspaceID string, meeting models.MeetingInfo, attemptAt time.Time) (*models.BotSession, error) {
	session := models.NewBotSession(workspaceID, meeting, attemptAt)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.BotSession{}).
			Where("workspace_id = ? AND meeting_id = ?", workspaceID, meeting.ID).
			Where("status IN ?", activeStatusValues()).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateSession
		}
		return tx.Create(session).Error
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateSession) || isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: workspace %s meeting %s", ErrDuplicateSession, workspaceID, meeting.ID)
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// UpdateStatus applies a forward status change with compare-and-swap on the
// current status, so two writers cannot both move the same session
func (r *BotSessionRepositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus, update SessionUpdate) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.BotSession
		if err := tx.Select("id", "status").Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: session %s", ErrNotFound, id)
			}
			return err
		}

		if !current.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
		}

		updates := map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}
		if update.JoinTime != nil {
			updates["join_time"] = *update.JoinTime
		}
		if update.EndTime != nil {
			updates["end_time"] = *update.EndTime
		}
		if update.ErrorMessage != "" {
			updates["error_message"] = update.ErrorMessage
		}
		if update.BotHandle != "" {
			updates["bot_handle"] = update.BotHandle
		}

		result := tx.Model(&models.BotSession{}).
			Where("id = ? AND status = ?", id, current.Status).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: session %s changed concurrently", ErrInvalidTransition, id)
		}
		return nil
	})
}

// ListActiveSessions retrieves joining and active sessions, oldest first
func (r *BotSessionRepositoryImpl) ListActiveSessions(ctx context.Context, workspaceID string) ([]*models.BotSession, error) {
	var sessions []*models.BotSession
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Where("status IN ?", activeStatusValues()).
		Order("created_at ASC").
		Find(&sessions).Error
	return sessions, err
}

// GetByID retrieves a session by ID
func (r *BotSessionRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.BotSession, error) {
	var session models.BotSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &session, nil
}

// ListByWorkspace retrieves sessions newest first. limit <= 0 returns all.
func (r *BotSessionRepositoryImpl) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*models.BotSession, error) {
	var sessions []*models.BotSession
	query := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&sessions).Error
	return sessions, err
}

// FindByMeeting retrieves every session of a meeting, oldest first
func (r *BotSessionRepositoryImpl) FindByMeeting(ctx context.Context, workspaceID, meetingID string) ([]*models.BotSession, error) {
	var sessions []*models.BotSession
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND meeting_id = ?", workspaceID, meetingID).
		Order("created_at ASC").
		Find(&sessions).Error
	return sessions, err
}

// AttachArtifacts stores artifact references without touching the status
func (r *BotSessionRepositoryImpl) AttachArtifacts(ctx context.Context, id uuid.UUID, artifacts Artifacts) error {
	updates := map[string]interface{}{}
	if artifacts.RecordingURL != nil {
		updates["recording_url"] = *artifacts.RecordingURL
	}
	if artifacts.Transcript != nil {
		updates["transcript"] = *artifacts.Transcript
	}
	if artifacts.AISummary != nil {
		updates["ai_summary"] = *artifacts.AISummary
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now()

	return r.db.WithContext(ctx).Model(&models.BotSession{}).Where("id = ?", id).Updates(updates).Error
}

// isUniqueViolation recognises duplicate key errors from sqlite and postgres,
// with or without gorm's error translation enabled
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
