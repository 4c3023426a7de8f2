package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/RallyPointLabs/rallypoint/backend/internal/notifications"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const streamHeartbeatInterval = 25 * time.Second

type notificationPayload struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	claims, err := sessionClaims(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	rows, err := h.inbox.List(c.Request.Context(), claims.WalletAddress)
	if err != nil {
		h.logger.Error("notification listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	payload := make([]notificationPayload, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, notificationPayload{
			ID:        row.ID,
			Type:      string(row.Type),
			Title:     row.Title,
			Message:   row.Message,
			Payload:   row.Payload,
			IsRead:    row.IsRead,
			CreatedAt: row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"notifications": payload})
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	claims, err := sessionClaims(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	err = h.inbox.MarkRead(c.Request.Context(), claims.WalletAddress, c.Param("id"))
	if err != nil {
		if errors.Is(err, notifications.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification_not_found"})
			return
		}
		h.logger.Error("notification mark-read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mark_read_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleMarkAllRead(c *gin.Context) {
	claims, err := sessionClaims(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	updated, err := h.inbox.MarkAllRead(c.Request.Context(), claims.WalletAddress)
	if err != nil {
		h.logger.Error("notification mark-all-read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mark_all_read_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// handleNotificationStream serves live notification announcements over SSE.
// Missed messages are not replayed; clients reconcile through the inbox
// listing.
func (h *httpHandler) handleNotificationStream(c *gin.Context) {
	claims, err := sessionClaims(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	messages, cancel := h.stream.Subscribe(c.Request.Context(), claims.WalletAddress)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			c.SSEvent("notification", message)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"time": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}
