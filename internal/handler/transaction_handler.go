package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"campuspoints/internal/middleware"
	"campuspoints/internal/model"
	"campuspoints/internal/repository"
	"campuspoints/internal/service"
	"campuspoints/pkg/pagination"
	"campuspoints/pkg/response"

	"github.com/gin-gonic/gin"
)

type TransactionHandler struct {
	txService service.TransactionService
}

// NewTransactionHandler sets up the routing dependencies for Transaction endpoints
func NewTransactionHandler(txService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{txService: txService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *TransactionHandler) RegisterRoutes(router *gin.RouterGroup) {
	txs := router.Group("/transactions")
	{
		txs.POST("", middleware.RequireRole(model.RoleCashier), h.Create)
		txs.GET("", middleware.RequireRole(model.RoleManager), h.List)
		txs.GET("/:transactionId", middleware.RequireRole(model.RoleManager), h.Get)
		txs.PATCH("/:transactionId/suspicious", middleware.RequireRole(model.RoleManager), h.SetSuspicious)
		txs.PATCH("/:transactionId/processed", middleware.RequireRole(model.RoleCashier), h.Process)
	}
}

// Create handles POST /transactions for purchases and adjustments
// @Summary      Record purchase or adjustment
// @Description  Cashiers record purchases; managers additionally record adjustments against an existing transaction
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Success      201  {object}  service.TransactionResponse
// @Failure      400  {object}  response.ErrorBody
// @Failure      403  {object}  response.ErrorBody
// @Failure      404  {object}  response.ErrorBody
// @Router       /transactions [post]
func (h *TransactionHandler) Create(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error("Invalid request payload"))
		return
	}

	var peek struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("Invalid request payload"))
		return
	}

	// rewind so the typed bind below can read the body again
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	callerID := middleware.CallerID(c)

	switch peek.Type {
	case model.TxPurchase:
		var req service.PurchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Error("utorid and spent are required"))
			return
		}
		tx, err := h.txService.CreatePurchase(c.Request.Context(), callerID, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, tx)

	case model.TxAdjustment:
		if !model.RoleAtLeast(middleware.CallerRole(c), model.RoleManager) {
			c.JSON(http.StatusForbidden, response.Error("Access denied: insufficient permissions"))
			return
		}
		var req service.AdjustmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Error("utorid, amount, and relatedId are required"))
			return
		}
		tx, err := h.txService.CreateAdjustment(c.Request.Context(), callerID, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, tx)

	default:
		c.JSON(http.StatusBadRequest, response.Error("Type must be purchase or adjustment"))
	}
}

// List handles GET /transactions with filters and pagination
// @Summary      List transactions
// @Tags         transactions
// @Produce      json
// @Security     BearerAuth
// @Param        name        query     string  false  "Owner utorid or name, substring"
// @Param        createdBy   query     string  false  "Creator utorid"
// @Param        suspicious  query     bool    false  "Suspicious filter"
// @Param        promotionId query     string  false  "Promotion id"
// @Param        type        query     string  false  "Transaction type"
// @Param        relatedId   query     string  false  "Related id, with type"
// @Param        amount      query     int     false  "Amount bound"
// @Param        operator    query     string  false  "gte or lte"
// @Param        page        query     int     false  "Page number"
// @Param        limit       query     int     false  "Page size"
// @Success      200         {object}  response.ListBody
// @Router       /transactions [get]
func (h *TransactionHandler) List(c *gin.Context) {
	filter := repository.TransactionFilter{
		Name:        c.Query("name"),
		CreatedBy:   c.Query("createdBy"),
		PromotionID: c.Query("promotionId"),
		Type:        c.Query("type"),
		RelatedID:   c.Query("relatedId"),
		Operator:    c.Query("operator"),
	}
	if v, ok := parseBoolQuery(c, "suspicious"); ok {
		filter.Suspicious = &v
	}
	if amountStr := c.Query("amount"); amountStr != "" {
		amount, err := strconv.Atoi(amountStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error("amount must be an integer"))
			return
		}
		filter.Amount = &amount
	}

	p := pagination.Parse(c)
	txs, total, err := h.txService.List(c.Request.Context(), filter, p.Offset, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.List(total, txs))
}

// Get handles GET /transactions/:transactionId
// @Summary      Get transaction
// @Tags         transactions
// @Produce      json
// @Security     BearerAuth
// @Param        transactionId  path      string  true  "Transaction id"
// @Success      200            {object}  service.TransactionResponse
// @Failure      404            {object}  response.ErrorBody
// @Router       /transactions/{transactionId} [get]
func (h *TransactionHandler) Get(c *gin.Context) {
	tx, err := h.txService.Get(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// SetSuspicious handles PATCH /transactions/:transactionId/suspicious
// @Summary      Flag or clear a suspicious transaction
// @Description  Flagging deducts the earned points from the owner; clearing credits them. Repeating the current value changes nothing.
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        transactionId  path      string                 true  "Transaction id"
// @Param        payload        body      object{suspicious=bool}  true  "New flag value"
// @Success      200            {object}  service.TransactionResponse
// @Failure      404            {object}  response.ErrorBody
// @Router       /transactions/{transactionId}/suspicious [patch]
func (h *TransactionHandler) SetSuspicious(c *gin.Context) {
	var req struct {
		Suspicious *bool `json:"suspicious" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("suspicious is required"))
		return
	}

	tx, err := h.txService.SetSuspicious(c.Request.Context(), c.Param("transactionId"), *req.Suspicious)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// Process handles PATCH /transactions/:transactionId/processed
// @Summary      Process a redemption
// @Description  Deducts the redeemed amount from the owner's balance and marks the redemption processed. A redemption can only be processed once.
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        transactionId  path      string                  true  "Redemption transaction id"
// @Param        payload        body      object{processed=bool}  true  "Must be true"
// @Success      200            {object}  service.TransactionResponse
// @Failure      400            {object}  response.ErrorBody
// @Failure      404            {object}  response.ErrorBody
// @Router       /transactions/{transactionId}/processed [patch]
func (h *TransactionHandler) Process(c *gin.Context) {
	var req struct {
		Processed *bool `json:"processed" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !*req.Processed {
		c.JSON(http.StatusBadRequest, response.Error("processed must be true"))
		return
	}

	tx, err := h.txService.ProcessRedemption(c.Request.Context(), middleware.CallerID(c), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}
