package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jgirmay/meetingbot/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkspaceBotSettingsRepositoryImpl implements WorkspaceBotSettingsRepository
type WorkspaceBotSettingsRepositoryImpl struct {
	db *gorm.DB
}

// NewWorkspaceBotSettingsRepository creates a new settings repository
func NewWorkspaceBotSettingsRepository(db *gorm.DB) WorkspaceBotSettingsRepository {
	return &WorkspaceBotSettingsRepositoryImpl{db: db}
}

// Save upserts the settings row keyed by workspace
func (r *WorkspaceBotSettingsRepositoryImpl) Save(ctx context.Context, workspaceID string, settings models.BotSettings) error {
	row := models.NewWorkspaceBotSettings(workspaceID, settings)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "workspace_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled", "auto_join", "record_meetings", "transcribe_audio",
			"join_before_minutes", "leave_after_minutes", "bot_name", "updated_at",
		}),
	}).Create(row).Error
}

// Get retrieves the settings of a workspace
func (r *WorkspaceBotSettingsRepositoryImpl) Get(ctx context.Context, workspaceID string) (*models.WorkspaceBotSettings, error) {
	var row models.WorkspaceBotSettings
	err := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: settings for workspace %s", ErrNotFound, workspaceID)
		}
		return nil, err
	}
	return &row, nil
}

// ListEnabled retrieves enabled workspaces ordered by workspace id
func (r *WorkspaceBotSettingsRepositoryImpl) ListEnabled(ctx context.Context) ([]*models.WorkspaceBotSettings, error) {
	var rows []*models.WorkspaceBotSettings
	err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("workspace_id").Find(&rows).Error
	return rows, err
}

// SetEnabled updates the enabled flag
func (r *WorkspaceBotSettingsRepositoryImpl) SetEnabled(ctx context.Context, workspaceID string, enabled bool) error {
	return r.db.WithContext(ctx).Model(&models.WorkspaceBotSettings{}).
		Where("workspace_id = ?", workspaceID).
		Updates(map[string]interface{}{
			"enabled":    enabled,
			"updated_at": time.Now(),
		}).Error
}
