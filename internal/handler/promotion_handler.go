package handler

import (
	"net/http"

	"campuspoints/internal/middleware"
	"campuspoints/internal/model"
	"campuspoints/internal/repository"
	"campuspoints/internal/service"
	"campuspoints/pkg/pagination"
	"campuspoints/pkg/response"

	"github.com/gin-gonic/gin"
)

type PromotionHandler struct {
	promoService service.PromotionService
}

// NewPromotionHandler sets up the routing dependencies for Promotion endpoints
func NewPromotionHandler(promoService service.PromotionService) *PromotionHandler {
	return &PromotionHandler{promoService: promoService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *PromotionHandler) RegisterRoutes(router *gin.RouterGroup) {
	promos := router.Group("/promotions")
	{
		promos.POST("", middleware.RequireRole(model.RoleManager), h.Create)
		promos.GET("", middleware.RequireAuth(), h.List)
		promos.GET("/:promotionId", middleware.RequireAuth(), h.Get)
		promos.PATCH("/:promotionId", middleware.RequireRole(model.RoleManager), h.Update)
		promos.DELETE("/:promotionId", middleware.RequireRole(model.RoleManager), h.Delete)
		promos.GET("/:promotionId/usage", middleware.RequireRole(model.RoleManager), h.ListUsage)
	}
}

// Create handles POST /promotions
// @Summary      Create promotion
// @Tags         promotions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreatePromotionRequest  true  "New promotion"
// @Success      201      {object}  service.PromotionResponse
// @Failure      400      {object}  response.ErrorBody
// @Router       /promotions [post]
func (h *PromotionHandler) Create(c *gin.Context) {
	var req service.CreatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("name, description, type, startTime, and endTime are required"))
		return
	}

	promo, err := h.promoService.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, promo)
}

// List handles GET /promotions. Managers see every promotion with the full
// filter set; everyone else sees only the promotions still available to them.
// @Summary      List promotions
// @Tags         promotions
// @Produce      json
// @Security     BearerAuth
// @Param        name     query     string  false  "Name substring (manager only)"
// @Param        type     query     string  false  "automatic or one-time"
// @Param        started  query     bool    false  "Started filter (manager only)"
// @Param        ended    query     bool    false  "Ended filter (manager only)"
// @Param        page     query     int     false  "Page number"
// @Param        limit    query     int     false  "Page size"
// @Success      200      {object}  response.ListBody
// @Failure      400      {object}  response.ErrorBody
// @Router       /promotions [get]
func (h *PromotionHandler) List(c *gin.Context) {
	p := pagination.Parse(c)

	if model.RoleAtLeast(middleware.CallerRole(c), model.RoleManager) {
		filter := repository.PromotionFilter{
			Name: c.Query("name"),
			Type: c.Query("type"),
		}
		started, hasStarted := parseBoolQuery(c, "started")
		ended, hasEnded := parseBoolQuery(c, "ended")
		if hasStarted && hasEnded {
			c.JSON(http.StatusBadRequest, response.Error("started and ended cannot both be specified"))
			return
		}
		if hasStarted {
			filter.Started = &started
		}
		if hasEnded {
			filter.Ended = &ended
		}

		promos, total, err := h.promoService.ListAdmin(c.Request.Context(), filter, p.Offset, p.Limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.List(total, promos))
		return
	}

	promos, total, err := h.promoService.ListAvailable(c.Request.Context(), middleware.CallerID(c), c.Query("type"), p.Offset, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.List(total, promos))
}

// Get handles GET /promotions/:promotionId
// @Summary      Get promotion
// @Tags         promotions
// @Produce      json
// @Security     BearerAuth
// @Param        promotionId  path      string  true  "Promotion id"
// @Success      200          {object}  service.PromotionResponse
// @Failure      404          {object}  response.ErrorBody
// @Router       /promotions/{promotionId} [get]
func (h *PromotionHandler) Get(c *gin.Context) {
	promo, err := h.promoService.Get(c.Request.Context(), c.Param("promotionId"), middleware.CallerRole(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, promo)
}

// Update handles PATCH /promotions/:promotionId
// @Summary      Update promotion
// @Description  Terms are locked once the promotion has started; published can only move to true
// @Tags         promotions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        promotionId  path      string                          true  "Promotion id"
// @Param        payload      body      service.UpdatePromotionRequest  true  "Fields to change"
// @Success      200          {object}  service.PromotionResponse
// @Failure      400          {object}  response.ErrorBody
// @Failure      404          {object}  response.ErrorBody
// @Router       /promotions/{promotionId} [patch]
func (h *PromotionHandler) Update(c *gin.Context) {
	var req service.UpdatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("Invalid request payload"))
		return
	}

	promo, err := h.promoService.Update(c.Request.Context(), c.Param("promotionId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, promo)
}

// Delete handles DELETE /promotions/:promotionId
// @Summary      Delete promotion
// @Description  Only promotions that have not started can be removed
// @Tags         promotions
// @Security     BearerAuth
// @Param        promotionId  path  string  true  "Promotion id"
// @Success      204
// @Failure      403  {object}  response.ErrorBody
// @Failure      404  {object}  response.ErrorBody
// @Router       /promotions/{promotionId} [delete]
func (h *PromotionHandler) Delete(c *gin.Context) {
	if err := h.promoService.Delete(c.Request.Context(), c.Param("promotionId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListUsage handles GET /promotions/:promotionId/usage
// @Summary      List one-time promotion usage
// @Tags         promotions
// @Produce      json
// @Security     BearerAuth
// @Param        promotionId  path      string  true   "Promotion id"
// @Param        page         query     int     false  "Page number"
// @Param        limit        query     int     false  "Page size"
// @Success      200          {object}  response.ListBody
// @Failure      404          {object}  response.ErrorBody
// @Router       /promotions/{promotionId}/usage [get]
func (h *PromotionHandler) ListUsage(c *gin.Context) {
	p := pagination.Parse(c)
	usage, total, err := h.promoService.ListUsage(c.Request.Context(), c.Param("promotionId"), p.Offset, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.List(total, usage))
}
