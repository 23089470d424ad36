package handler

import (
	"net/http"

	"prs/internal/service"
	"prs/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LineItemHandler struct {
	lineItemService service.LineItemService
	log             *zap.Logger
}

func NewLineItemHandler(lineItemService service.LineItemService, log *zap.Logger) *LineItemHandler {
	return &LineItemHandler{lineItemService: lineItemService, log: log}
}

func (h *LineItemHandler) RegisterRoutes(router *gin.RouterGroup) {
	items := router.Group("/line-items")
	{
		items.GET("", h.ListLineItems)
		items.POST("", h.CreateLineItem)
		items.GET("/:id", h.GetLineItem)
		items.PUT("/:id", h.UpdateLineItem)
		items.DELETE("/:id", h.DeleteLineItem)
	}
}

// ListLineItems godoc
// @Summary      List all line items
// @Tags         line-items
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.LineItem}
// @Router       /api/line-items [get]
func (h *LineItemHandler) ListLineItems(c *gin.Context) {
	items, err := h.lineItemService.ListLineItems(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, items))
}

// CreateLineItem godoc
// @Summary      Add a line item
// @Description  Adds a product to a request and recomputes the request total
// @Tags         line-items
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateLineItemDTO  true  "Line item"
// @Success      201      {object}  response.Response{data=model.LineItem}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/line-items [post]
func (h *LineItemHandler) CreateLineItem(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req service.CreateLineItemDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	item, err := h.lineItemService.CreateLineItem(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, item))
}

// GetLineItem godoc
// @Summary      Get a line item
// @Tags         line-items
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Line item ID"
// @Success      200  {object}  response.Response{data=model.LineItem}
// @Failure      404  {object}  response.Response
// @Router       /api/line-items/{id} [get]
func (h *LineItemHandler) GetLineItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	item, err := h.lineItemService.GetLineItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// UpdateLineItem godoc
// @Summary      Replace a line item
// @Description  Recomputes the totals of both the previous and the new owning request
// @Tags         line-items
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                        true  "Line item ID"
// @Param        payload  body      service.UpdateLineItemDTO  true  "Line item"
// @Success      200      {object}  response.Response{data=model.LineItem}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/line-items/{id} [put]
func (h *LineItemHandler) UpdateLineItem(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateLineItemDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	item, err := h.lineItemService.UpdateLineItem(c.Request.Context(), userID, id, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// DeleteLineItem godoc
// @Summary      Delete a line item
// @Tags         line-items
// @Security     BearerAuth
// @Param        id   path  int  true  "Line item ID"
// @Success      204
// @Failure      404  {object}  response.Response
// @Router       /api/line-items/{id} [delete]
func (h *LineItemHandler) DeleteLineItem(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.lineItemService.DeleteLineItem(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
