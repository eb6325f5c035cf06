package orchestration

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jgirmay/meetingbot/internal/api/dtos"
	"github.com/jgirmay/meetingbot/internal/calendar"
	"github.com/jgirmay/meetingbot/internal/orchestration/bots"
	"github.com/jgirmay/meetingbot/pkg/models"
	"github.com/jgirmay/meetingbot/pkg/repository"
)

// maxSessionLimit caps the history page size
const maxSessionLimit = 500

// BotController is the orchestrator surface the handlers need
type BotController interface {
	Start(ctx context.Context, workspaceID string, settings models.BotSettings) error
	Stop(ctx context.Context, workspaceID string) error
	IsRunning(workspaceID string) bool
	ListBots() []bots.BotStatus
	ListActiveSessions(ctx context.Context, workspaceID string) ([]*models.BotSession, error)
	ListSessions(ctx context.Context, workspaceID string, limit int) ([]*models.BotSession, error)
	GetSession(ctx context.Context, workspaceID string, id uuid.UUID) (*models.BotSession, error)
	AttachArtifacts(ctx context.Context, workspaceID string, id uuid.UUID, artifacts repository.Artifacts) (*models.BotSession, error)
	Events() *bots.EventBus
}

// BotHandler handles bot control and session HTTP requests
type BotHandler struct {
	bots BotController
}

// NewBotHandler creates a new bot handler
func NewBotHandler(controller BotController) *BotHandler {
	return &BotHandler{bots: controller}
}

// RegisterRoutes registers bot routes
func (h *BotHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/bots")
	{
		group.POST("/start", h.StartBot)
		group.POST("/stop", h.StopBot)
		group.GET("", h.ListBots)

		group.GET("/:workspaceID/sessions", h.ListSessions)
		group.GET("/:workspaceID/sessions/:sessionID", h.GetSession)
		group.PATCH("/:workspaceID/sessions/:sessionID/artifacts", h.AttachArtifacts)
		group.GET("/:workspaceID/events", h.StreamEvents)
	}
}

func respondError(c *gin.Context, status int, code string, err error) {
	c.JSON(status, dtos.ErrorResponse{
		Error:      code,
		Message:    err.Error(),
		StatusCode: status,
		Timestamp:  time.Now(),
	})
}

// respondBotError maps orchestrator errors onto client and server errors
func respondBotError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bots.ErrMissingWorkspace), errors.Is(err, bots.ErrInvalidSettings):
		respondError(c, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, calendar.ErrCalendarNotConnected):
		respondError(c, http.StatusBadRequest, "calendar_not_connected", err)
	case errors.Is(err, repository.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, bots.ErrClosed):
		respondError(c, http.StatusServiceUnavailable, "shutting_down", err)
	default:
		respondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}

// StartBot starts or reconfigures a workspace bot
// @Summary Start a workspace bot
// @Description Starts the bot with the given settings, replacing a running one. Disabled settings stop it.
// @Tags Bots
// @Accept json
// @Produce json
// @Param request body dtos.StartBotRequest true "Workspace and settings"
// @Success 200 {object} dtos.BotActionResponse
// @Failure 400 {object} dtos.ErrorResponse
// @Failure 500 {object} dtos.ErrorResponse
// @Router /api/bots/start [post]
func (h *BotHandler) StartBot(c *gin.Context) {
	var req dtos.StartBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	if err := h.bots.Start(c.Request.Context(), req.WorkspaceID, *req.Settings); err != nil {
		respondBotError(c, err)
		return
	}

	c.JSON(http.StatusOK, dtos.BotActionResponse{
		Success:     true,
		WorkspaceID: req.WorkspaceID,
		Running:     h.bots.IsRunning(req.WorkspaceID),
	})
}

// StopBot stops a workspace bot
// @Summary Stop a workspace bot
// @Tags Bots
// @Accept json
// @Produce json
// @Param request body dtos.StopBotRequest true "Workspace"
// @Success 200 {object} dtos.BotActionResponse
// @Failure 400 {object} dtos.ErrorResponse
// @Router /api/bots/stop [post]
func (h *BotHandler) StopBot(c *gin.Context) {
	var req dtos.StopBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	if err := h.bots.Stop(c.Request.Context(), req.WorkspaceID); err != nil {
		respondBotError(c, err)
		return
	}

	c.JSON(http.StatusOK, dtos.BotActionResponse{Success: true, WorkspaceID: req.WorkspaceID})
}

// ListBots lists running bots
// @Summary List running bots
// @Tags Bots
// @Produce json
// @Success 200 {object} dtos.ListResponse
// @Router /api/bots [get]
func (h *BotHandler) ListBots(c *gin.Context) {
	statuses := h.bots.ListBots()

	items := make([]dtos.BotStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		items = append(items, dtos.BotStatusResponse{
			WorkspaceID: s.WorkspaceID,
			Settings:    s.Settings,
			StartedAt:   s.StartedAt,
			LastTick:    s.LastTick,
			TickCount:   s.TickCount,
			InFlight:    s.InFlight,
			LastError:   s.LastError,
		})
	}

	c.JSON(http.StatusOK, dtos.ListResponse{Items: items, Total: len(items)})
}

// ListSessions lists the sessions of a workspace
// @Summary List bot sessions
// @Description Returns session history newest first, or only joining/active sessions with active=true
// @Tags Sessions
// @Produce json
// @Param workspaceID path string true "Workspace ID"
// @Param active query bool false "Only joining and active sessions"
// @Param limit query int false "Maximum number of sessions"
// @Success 200 {object} dtos.ListResponse
// @Failure 400 {object} dtos.ErrorResponse
// @Router /api/bots/{workspaceID}/sessions [get]
func (h *BotHandler) ListSessions(c *gin.Context) {
	workspaceID := c.Param("workspaceID")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "invalid_request", errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	if limit == 0 || limit > maxSessionLimit {
		limit = maxSessionLimit
	}

	var (
		sessions []*models.BotSession
		err      error
	)
	if c.Query("active") == "true" {
		sessions, err = h.bots.ListActiveSessions(c.Request.Context(), workspaceID)
	} else {
		sessions, err = h.bots.ListSessions(c.Request.Context(), workspaceID, limit)
	}
	if err != nil {
		respondBotError(c, err)
		return
	}

	items := make([]*dtos.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, dtos.NewSessionResponse(s))
	}
	c.JSON(http.StatusOK, dtos.ListResponse{Items: items, Total: len(items)})
}

func (h *BotHandler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", errors.New("session id must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

// GetSession retrieves a session
// @Summary Get session details
// @Tags Sessions
// @Produce json
// @Param workspaceID path string true "Workspace ID"
// @Param sessionID path string true "Session ID"
// @Success 200 {object} dtos.SessionResponse
// @Failure 404 {object} dtos.ErrorResponse
// @Router /api/bots/{workspaceID}/sessions/{sessionID} [get]
func (h *BotHandler) GetSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	session, err := h.bots.GetSession(c.Request.Context(), c.Param("workspaceID"), id)
	if err != nil {
		respondBotError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.NewSessionResponse(session))
}

// AttachArtifacts stores recording, transcript and summary references
// @Summary Attach session artifacts
// @Tags Sessions
// @Accept json
// @Produce json
// @Param workspaceID path string true "Workspace ID"
// @Param sessionID path string true "Session ID"
// @Param request body dtos.AttachArtifactsRequest true "Artifacts"
// @Success 200 {object} dtos.SessionResponse
// @Failure 400 {object} dtos.ErrorResponse
// @Failure 404 {object} dtos.ErrorResponse
// @Router /api/bots/{workspaceID}/sessions/{sessionID}/artifacts [patch]
func (h *BotHandler) AttachArtifacts(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req dtos.AttachArtifactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Empty() {
		respondError(c, http.StatusBadRequest, "invalid_request", errors.New("no artifacts given"))
		return
	}

	session, err := h.bots.AttachArtifacts(c.Request.Context(), c.Param("workspaceID"), id, repository.Artifacts{
		RecordingURL: req.RecordingURL,
		Transcript:   req.Transcript,
		AISummary:    req.AISummary,
	})
	if err != nil {
		respondBotError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.NewSessionResponse(session))
}
