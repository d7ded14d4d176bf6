package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bannerdesk/banner-service/internal/alerts"
	"github.com/bannerdesk/banner-service/internal/database"
)

// AlertsResponse lists products needing attention, nearest deadline first.
type AlertsResponse struct {
	Items      []alerts.Item     `json:"items" jsonschema:"required"`
	Thresholds alerts.Thresholds `json:"thresholds" jsonschema:"required"`
}

// ListAlerts returns the needs-attention list. all=true evaluates every
// visible product instead.
func (h *Handler) ListAlerts(c *gin.Context) {
	all, _ := strconv.ParseBool(c.DefaultQuery("all", "false"))
	items, err := h.Alerts.List(c.Request.Context(), actor(c), alerts.ListOptions{All: all})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AlertsResponse{Items: items, Thresholds: h.Alerts.Thresholds()})
}

// NotificationsResponse lists notifications, newest first.
type NotificationsResponse struct {
	Notifications []database.Notification `json:"notifications" jsonschema:"required"`
}

// SetReadRequest toggles a notification's read flag.
type SetReadRequest struct {
	Read *bool `json:"read" binding:"required" jsonschema:"required"`
}

func (h *Handler) ListNotifications(c *gin.Context) {
	unread, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		h.badRequest(c, "limit must be between 1 and 200")
		return
	}
	out, err := h.Notifications.List(c.Request.Context(), actor(c), unread, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, NotificationsResponse{Notifications: out})
}

func (h *Handler) SetNotificationRead(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req SetReadRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Notifications.SetRead(c.Request.Context(), actor(c), id, *req.Read); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
