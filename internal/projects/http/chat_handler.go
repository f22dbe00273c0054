package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/appforge-labs/appforge-backend/internal/auth"
	"github.com/appforge-labs/appforge-backend/internal/projects/domain"
)

type chatReq struct {
	Message   string `json:"message"`
	ProjectID string `json:"project_id"`
}

// postChat forwards one chat message to the interactive gate and returns its
// reply together with the project id the conversation is bound to.
func (h *Handler) postChat(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	userID := auth.UserID(c)
	if req.ProjectID != "" {
		// Ownership check before the gate touches anything.
		if _, err := h.svc.Get(c.Request.Context(), userID, req.ProjectID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
	}

	reply, projectID, err := h.gate.Handle(c.Request.Context(), req.Message, req.ProjectID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "reply": reply, "project_id": projectID})
}
