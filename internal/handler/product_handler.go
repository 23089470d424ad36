package handler

import (
	"net/http"

	"prs/internal/middleware"
	"prs/internal/service"
	"prs/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProductHandler struct {
	productService service.ProductService
	log            *zap.Logger
}

func NewProductHandler(productService service.ProductService, log *zap.Logger) *ProductHandler {
	return &ProductHandler{productService: productService, log: log}
}

// RegisterRoutes expects a group that already runs RequireAuth. Writes are admin only.
func (h *ProductHandler) RegisterRoutes(router *gin.RouterGroup) {
	vendors := router.Group("/vendors")
	{
		vendors.GET("", h.ListVendors)
		vendors.POST("", middleware.RequireAdmin(), h.CreateVendor)
	}

	products := router.Group("/products")
	{
		products.GET("", h.ListProducts)
		products.GET("/:id", h.GetProduct)
		products.POST("", middleware.RequireAdmin(), h.CreateProduct)
		products.PUT("/:id", middleware.RequireAdmin(), h.UpdateProduct)
		products.DELETE("/:id", middleware.RequireAdmin(), h.DeleteProduct)
	}
}

// ListVendors godoc
// @Summary      List vendors
// @Tags         vendors
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.Vendor}
// @Router       /api/vendors [get]
func (h *ProductHandler) ListVendors(c *gin.Context) {
	vendors, err := h.productService.ListVendors(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, vendors))
}

// CreateVendor godoc
// @Summary      Create a vendor
// @Tags         vendors
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateVendorDTO  true  "Vendor"
// @Success      201      {object}  response.Response{data=model.Vendor}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/vendors [post]
func (h *ProductHandler) CreateVendor(c *gin.Context) {
	var req service.CreateVendorDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	vendor, err := h.productService.CreateVendor(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, vendor))
}

// ListProducts godoc
// @Summary      List products
// @Tags         products
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.Product}
// @Router       /api/products [get]
func (h *ProductHandler) ListProducts(c *gin.Context) {
	products, err := h.productService.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, products))
}

// GetProduct godoc
// @Summary      Get a product
// @Tags         products
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Product ID"
// @Success      200  {object}  response.Response{data=model.Product}
// @Failure      404  {object}  response.Response
// @Router       /api/products/{id} [get]
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	product, err := h.productService.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, product))
}

// CreateProduct godoc
// @Summary      Create a product
// @Tags         products
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ProductDTO  true  "Product"
// @Success      201      {object}  response.Response{data=model.Product}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/products [post]
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req service.ProductDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	product, err := h.productService.CreateProduct(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, product))
}

// UpdateProduct godoc
// @Summary      Update a product
// @Description  A price change recomputes the total of every NEW or REVIEW request holding the product
// @Tags         products
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                 true  "Product ID"
// @Param        payload  body      service.ProductDTO  true  "Product"
// @Success      200      {object}  response.Response{data=model.Product}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/products/{id} [put]
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.ProductDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	product, err := h.productService.UpdateProduct(c.Request.Context(), userID, id, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, product))
}

// DeleteProduct godoc
// @Summary      Delete a product
// @Description  Refused while line items reference the product
// @Tags         products
// @Security     BearerAuth
// @Param        id   path  int  true  "Product ID"
// @Success      204
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/products/{id} [delete]
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.productService.DeleteProduct(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
