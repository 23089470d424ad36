package handler

import (
	"net/http"

	"prs/internal/service"
	"prs/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RequestHandler struct {
	requestService  service.RequestService
	lineItemService service.LineItemService
	log             *zap.Logger
}

func NewRequestHandler(requestService service.RequestService, lineItemService service.LineItemService, log *zap.Logger) *RequestHandler {
	return &RequestHandler{requestService: requestService, lineItemService: lineItemService, log: log}
}

// RegisterRoutes expects a group that already runs RequireAuth.
func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/requests")
	{
		requests.GET("", h.ListRequests)
		requests.POST("", h.CreateRequest)
		requests.GET("/review", h.ListPendingReview)
		requests.GET("/:id", h.GetRequest)
		requests.PUT("/:id", h.UpdateRequest)
		requests.DELETE("/:id", h.DeleteRequest)
		requests.POST("/:id/submit-review", h.SubmitForReview)
		requests.PUT("/:id/approve", h.ApproveRequest)
		requests.PUT("/:id/reject", h.RejectRequest)
		requests.GET("/:id/line-items", h.ListLineItems)
	}
}

// ListRequests godoc
// @Summary      List requests
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.Request}
// @Router       /api/requests [get]
func (h *RequestHandler) ListRequests(c *gin.Context) {
	requests, err := h.requestService.ListRequests(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, requests))
}

// CreateRequest godoc
// @Summary      Create a purchase request
// @Description  Raises a NEW request for the authenticated user with a fresh request number and a zero total
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateRequestDTO  true  "Request"
// @Success      201      {object}  response.Response{data=model.Request}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requests [post]
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req service.CreateRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	request, err := h.requestService.CreateRequest(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, request))
}

// GetRequest godoc
// @Summary      Get a request with its line items
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Request ID"
// @Success      200  {object}  response.Response{data=model.Request}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [get]
func (h *RequestHandler) GetRequest(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	request, err := h.requestService.GetRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, request))
}

// UpdateRequest godoc
// @Summary      Update the descriptive fields of a request
// @Description  The body must carry the request id and the version last read; a stale version is a concurrency conflict
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                       true  "Request ID"
// @Param        payload  body      service.UpdateRequestDTO  true  "Request"
// @Success      200      {object}  response.Response{data=model.Request}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id} [put]
func (h *RequestHandler) UpdateRequest(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	request, err := h.requestService.UpdateRequest(c.Request.Context(), userID, id, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, request))
}

// DeleteRequest godoc
// @Summary      Delete a request and its line items
// @Tags         requests
// @Security     BearerAuth
// @Param        id   path  int  true  "Request ID"
// @Success      204
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [delete]
func (h *RequestHandler) DeleteRequest(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.requestService.DeleteRequest(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitForReview godoc
// @Summary      Submit a request
// @Description  Totals at or below the auto-approve threshold are approved at once, larger ones wait in REVIEW
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Request ID"
// @Success      200  {object}  response.Response{data=model.Request}
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/requests/{id}/submit-review [post]
func (h *RequestHandler) SubmitForReview(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	result, err := h.requestService.SubmitForReview(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithMessage(http.StatusOK, result.Message, result.Request))
}

// ApproveRequest godoc
// @Summary      Approve a request in review
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Request ID"
// @Success      200  {object}  response.Response{data=model.Request}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/requests/{id}/approve [put]
func (h *RequestHandler) ApproveRequest(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	request, err := h.requestService.ApproveRequest(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, request))
}

// RejectRequest godoc
// @Summary      Reject a request in review
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                       true  "Request ID"
// @Param        payload  body      service.RejectRequestDTO  true  "Reason"
// @Success      200      {object}  response.Response{data=model.Request}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/reject [put]
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.RejectRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		// An empty body is a missing reason; the service rejects it.
		req.Reason = ""
	}

	request, err := h.requestService.RejectRequest(c.Request.Context(), userID, id, req.Reason)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, request))
}

// ListPendingReview godoc
// @Summary      Requests waiting for review
// @Description  Lists REVIEW requests raised by anyone other than the authenticated user
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.Request}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/review [get]
func (h *RequestHandler) ListPendingReview(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	requests, err := h.requestService.ListPendingReview(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, requests))
}

// ListLineItems godoc
// @Summary      Line items of a request
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Request ID"
// @Success      200  {object}  response.Response{data=[]model.LineItem}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id}/line-items [get]
func (h *RequestHandler) ListLineItems(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	items, err := h.lineItemService.ListByRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, items))
}
