package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleTick(c *gin.Context) {
	summary, err := h.governance.RunTick(c.Request.Context())
	if err != nil {
		h.logger.Error("lifecycle tick failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tick_failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleTierRun(c *gin.Context) {
	result, err := h.tiers.Run(c.Request.Context())
	if err != nil {
		h.logger.Error("tier batch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tier_run_failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}
