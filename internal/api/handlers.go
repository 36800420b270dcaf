package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fleetwatch/internal/alerting"
	"fleetwatch/internal/events"
	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type RecentEvents interface {
	Recent(q events.RecentQuery) []models.Event
}

type Alerts interface {
	Active() []models.ActiveAlert
	Acknowledge(ctx context.Context, alertID, by string) (models.ActiveAlert, error)
	Resolve(ctx context.Context, alertID string) (models.ActiveAlert, error)
}

type AlertHistory interface {
	ListAlertHistory(ctx context.Context, limit, offset int) ([]models.AlertRecord, int, error)
}

type ChannelReloader interface {
	Reload(ctx context.Context) error
}

type Tasks interface {
	Enqueue(ctx context.Context, payload models.TaskPayload) (string, error)
	GetStatus(ctx context.Context, taskID string) (map[string]string, error)
	Cancel(ctx context.Context, taskID string) error
}

type Sockets interface {
	ServeWS(w http.ResponseWriter, r *http.Request, tenantID, userID string)
}

// Deps are the components the handlers serve.
type Deps struct {
	Events   RecentEvents
	Alerts   Alerts
	History  AlertHistory
	Reloader ChannelReloader
	Tasks    Tasks
	Sockets  Sockets
}

type Handler struct {
	deps   Deps
	logger *logging.Logger
}

func NewHandler(deps Deps, logger *logging.Logger) *Handler {
	return &Handler{deps: deps, logger: logger}
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " is not available"})
}

func (h *Handler) ServeWebSocket(c *gin.Context) {
	if h.deps.Sockets == nil {
		unavailable(c, "WebSocket")
		return
	}
	h.deps.Sockets.ServeWS(c.Writer, c.Request, c.Query("tenant_id"), c.Query("user_id"))
}

func (h *Handler) GetRecentEvents(c *gin.Context) {
	if h.deps.Events == nil {
		unavailable(c, "Event bus")
		return
	}

	q := events.RecentQuery{
		Severity: models.Severity(c.Query("severity")),
		Source:   models.Source(c.Query("source")),
	}
	if q.Severity != "" && !q.Severity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid severity"})
		return
	}
	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		q.Limit = limit
	}

	list := h.deps.Events.Recent(q)
	if list == nil {
		list = []models.Event{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetActiveAlerts(c *gin.Context) {
	if h.deps.Alerts == nil {
		unavailable(c, "Alert engine")
		return
	}
	c.JSON(http.StatusOK, h.deps.Alerts.Active())
}

func (h *Handler) GetAlertHistory(c *gin.Context) {
	if h.deps.History == nil {
		unavailable(c, "Alert history")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}

	list, total, err := h.deps.History.ListAlertHistory(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Errorf("Failed to get alert history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alert history"})
		return
	}
	if list == nil {
		list = []models.AlertRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": list, "total": total, "limit": limit, "offset": offset})
}

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
}

func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	if h.deps.Alerts == nil {
		unavailable(c, "Alert engine")
		return
	}

	var req acknowledgeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}
	if req.AcknowledgedBy == "" {
		req.AcknowledgedBy = "unknown"
	}

	id := c.Param("id")
	alert, err := h.deps.Alerts.Acknowledge(c.Request.Context(), id, req.AcknowledgedBy)
	h.respondAlert(c, id, alert, err)
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	if h.deps.Alerts == nil {
		unavailable(c, "Alert engine")
		return
	}
	id := c.Param("id")
	alert, err := h.deps.Alerts.Resolve(c.Request.Context(), id)
	h.respondAlert(c, id, alert, err)
}

func (h *Handler) respondAlert(c *gin.Context, id string, alert models.ActiveAlert, err error) {
	switch {
	case errors.Is(err, alerting.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
	case err != nil:
		// The in-memory state changed; only persistence failed.
		h.logger.Errorf("Failed to persist alert %s: %v", id, err)
		c.JSON(http.StatusOK, gin.H{"alert": alert, "warning": "history not updated"})
	default:
		c.JSON(http.StatusOK, gin.H{"alert": alert})
	}
}

func (h *Handler) ReloadChannels(c *gin.Context) {
	if h.deps.Reloader == nil {
		unavailable(c, "Channel reloader")
		return
	}
	if err := h.deps.Reloader.Reload(c.Request.Context()); err != nil {
		h.logger.Errorf("Failed to reload channels: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload channels"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

type createTaskRequest struct {
	TenantID       string `json:"tenant_id"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content" binding:"required"`
	ClientType     string `json:"client_type"`
}

func (h *Handler) CreateTask(c *gin.Context) {
	if h.deps.Tasks == nil {
		unavailable(c, "Task queue")
		return
	}

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	id, err := h.deps.Tasks.Enqueue(c.Request.Context(), models.TaskPayload{
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		ClientType:     req.ClientType,
	})
	if err != nil {
		h.logger.Errorf("Failed to enqueue task: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue task"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "status": models.TaskPending})
}

func (h *Handler) GetTask(c *gin.Context) {
	if h.deps.Tasks == nil {
		unavailable(c, "Task queue")
		return
	}
	id := c.Param("id")
	status, err := h.deps.Tasks.GetStatus(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to get task %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get task"})
		return
	}
	if status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": id, "status": status})
}

func (h *Handler) CancelTask(c *gin.Context) {
	if h.deps.Tasks == nil {
		unavailable(c, "Task queue")
		return
	}
	id := c.Param("id")
	if err := h.deps.Tasks.Cancel(c.Request.Context(), id); err != nil {
		h.logger.Errorf("Failed to cancel task %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel task"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "status": "cancel_requested"})
}
