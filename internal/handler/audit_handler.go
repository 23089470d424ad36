package handler

import (
	"net/http"

	"prs/internal/service"
	"prs/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuditHandler struct {
	auditService service.AuditService
	log          *zap.Logger
}

func NewAuditHandler(auditService service.AuditService, log *zap.Logger) *AuditHandler {
	return &AuditHandler{auditService: auditService, log: log}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/requests/:id/history", h.GetRequestHistory)
}

// GetRequestHistory returns every recorded change of a request with the acting user
// @Summary      Request history
// @Description  Audit trail of a request: creation, edits, line item changes and status transitions, oldest first
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Request ID"
// @Success      200  {object}  response.Response{data=[]service.AuditLogResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id}/history [get]
func (h *AuditHandler) GetRequestHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	logs, err := h.auditService.RequestHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, logs))
}
