package http

import (
	"github.com/gin-gonic/gin"

	"github.com/appforge-labs/appforge-backend/internal/chat"
	"github.com/appforge-labs/appforge-backend/internal/notify"
	"github.com/appforge-labs/appforge-backend/internal/projects/service"
)

type Handler struct {
	svc  *service.ProjectService
	gate *chat.Gate
	bus  notify.Subscriber
}

func NewHandler(svc *service.ProjectService, gate *chat.Gate, bus notify.Subscriber) *Handler {
	return &Handler{svc: svc, gate: gate, bus: bus}
}

// Register mounts the project routes on rg. rg is expected to already carry
// the auth middleware.
func Register(rg *gin.RouterGroup, h *Handler) {
	rg.POST("", h.create)
	rg.GET("", h.list)
	rg.GET("/:id", h.get)
	rg.GET("/:id/events", h.streamEvents)
	rg.POST("/chat", h.postChat)
}
