package handler

import (
	"net/http"
	"strconv"
	"strings"

	"campuspoints/internal/middleware"
	"campuspoints/internal/model"
	"campuspoints/internal/repository"
	"campuspoints/internal/service"
	"campuspoints/pkg/pagination"
	"campuspoints/pkg/response"
	"campuspoints/pkg/upload"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService service.UserService
	txService   service.TransactionService
}

// NewUserHandler sets up the routing dependencies for User endpoints
func NewUserHandler(userService service.UserService, txService service.TransactionService) *UserHandler {
	return &UserHandler{userService: userService, txService: txService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup.
// The router cannot mix a static "me" segment with the :userId wildcard, so
// "me" is resolved inside each handler against the authenticated caller.
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	users := router.Group("/users")
	{
		users.POST("", middleware.RequireRole(model.RoleCashier), h.CreateUser)
		users.GET("", middleware.RequireRole(model.RoleManager), h.ListUsers)
		users.GET("/:userId", middleware.RequireAuth(), h.GetUser)
		users.PATCH("/:userId", middleware.RequireAuth(), h.UpdateUser)
		users.PATCH("/:userId/password", middleware.RequireAuth(), h.UpdatePassword)
		users.POST("/:userId/transactions", middleware.RequireAuth(), h.CreateUserTransaction)
		users.GET("/:userId/transactions", middleware.RequireAuth(), h.ListOwnTransactions)
		users.GET("/:userId/transactions/:transactionId/qrcode", middleware.RequireAuth(), h.RedemptionQR)
	}
}

// isMe reports whether the path parameter addresses the caller themselves.
func isMe(c *gin.Context) bool {
	param := c.Param("userId")
	return param == "me" || param == middleware.CallerID(c)
}

// targetUserID resolves the :userId parameter, mapping "me" to the caller.
func targetUserID(c *gin.Context) string {
	param := c.Param("userId")
	if param == "me" {
		return middleware.CallerID(c)
	}
	return param
}

// CreateUser handles POST /users to register a new member
// @Summary      Register user
// @Description  Creates a user with a pending activation token. Cashier or above.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateUserRequest  true  "New user"
// @Success      201      {object}  service.CreateUserResponse
// @Failure      400      {object}  response.ErrorBody
// @Failure      409      {object}  response.ErrorBody
// @Router       /users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("utorid, name, and email are required"))
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// ListUsers handles GET /users with filters and pagination
// @Summary      List users
// @Description  Lists users filtered by name, role, verified, and activated. Manager or above.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        name       query     string  false  "Substring of utorid or name"
// @Param        role       query     string  false  "Role filter"
// @Param        verified   query     bool    false  "Verified filter"
// @Param        activated  query     bool    false  "Activated filter"
// @Param        page       query     int     false  "Page number"
// @Param        limit      query     int     false  "Page size"
// @Success      200        {object}  response.ListBody
// @Router       /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	filter := repository.UserFilter{
		Name: c.Query("name"),
		Role: c.Query("role"),
	}
	if v, ok := parseBoolQuery(c, "verified"); ok {
		filter.Verified = &v
	}
	if v, ok := parseBoolQuery(c, "activated"); ok {
		filter.Activated = &v
	}

	p := pagination.Parse(c)
	users, total, err := h.userService.ListUsers(c.Request.Context(), filter, p.Offset, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.List(total, users))
}

// GetUser handles GET /users/:userId
// @Summary      Get user
// @Description  Returns the caller's own record for "me"; other users require cashier or above, with a reduced projection below manager
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path      string  true  "User id or me"
// @Success      200     {object}  service.UserResponse
// @Failure      403     {object}  response.ErrorBody
// @Failure      404     {object}  response.ErrorBody
// @Router       /users/{userId} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	if isMe(c) {
		user, err := h.userService.GetMe(c.Request.Context(), middleware.CallerID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
		return
	}

	role := middleware.CallerRole(c)
	if !model.RoleAtLeast(role, model.RoleCashier) {
		c.JSON(http.StatusForbidden, response.Error("Access denied: insufficient permissions"))
		return
	}

	user, err := h.userService.GetUser(c.Request.Context(), c.Param("userId"), role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateUser handles PATCH /users/:userId
// @Summary      Update user
// @Description  "me" updates name, email, birthday, and avatar; other users require manager or above and update email, verified, suspicious, and role
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path      string  true  "User id or me"
// @Success      200     {object}  service.UserResponse
// @Failure      400     {object}  response.ErrorBody
// @Failure      403     {object}  response.ErrorBody
// @Failure      404     {object}  response.ErrorBody
// @Router       /users/{userId} [patch]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	if isMe(c) {
		h.updateMe(c)
		return
	}

	role := middleware.CallerRole(c)
	if !model.RoleAtLeast(role, model.RoleManager) {
		c.JSON(http.StatusForbidden, response.Error("Access denied: insufficient permissions"))
		return
	}

	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("Invalid request payload"))
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), c.Param("userId"), role, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) updateMe(c *gin.Context) {
	var req service.UpdateMeRequest
	var avatarURL *string

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if name := c.PostForm("name"); name != "" {
			req.Name = &name
		}
		if email := c.PostForm("email"); email != "" {
			req.Email = &email
		}
		if birthday := c.PostForm("birthday"); birthday != "" {
			req.Birthday = &birthday
		}
		if file, err := c.FormFile("avatar"); err == nil {
			url, err := upload.SaveFile(c, file, "avatars")
			if err != nil {
				c.JSON(http.StatusBadRequest, response.Error(err.Error()))
				return
			}
			avatarURL = &url
		}
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Error("Invalid request payload"))
			return
		}
	}

	user, err := h.userService.UpdateMe(c.Request.Context(), middleware.CallerID(c), req, avatarURL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdatePassword handles PATCH /users/me/password
// @Summary      Change password
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.UpdatePasswordRequest  true  "Old and new password"
// @Success      200      {object}  map[string]string
// @Failure      400      {object}  response.ErrorBody
// @Failure      403      {object}  response.ErrorBody
// @Router       /users/me/password [patch]
func (h *UserHandler) UpdatePassword(c *gin.Context) {
	if !isMe(c) {
		c.JSON(http.StatusForbidden, response.Error("Passwords can only be changed by their owner"))
		return
	}

	var req service.UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("old and new passwords are required"))
		return
	}

	if err := h.userService.UpdatePassword(c.Request.Context(), middleware.CallerID(c), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// CreateUserTransaction handles POST /users/:userId/transactions:
// a redemption request against "me", a transfer against anyone else.
// @Summary      Create redemption or transfer
// @Description  POST /users/me/transactions requests a redemption; POST /users/{userId}/transactions transfers points to that user
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path      string  true  "Recipient id or me"
// @Success      201     {object}  service.TransactionResponse
// @Failure      400     {object}  response.ErrorBody
// @Failure      403     {object}  response.ErrorBody
// @Failure      404     {object}  response.ErrorBody
// @Router       /users/{userId}/transactions [post]
func (h *UserHandler) CreateUserTransaction(c *gin.Context) {
	callerID := middleware.CallerID(c)

	if isMe(c) {
		var req struct {
			Type   string `json:"type" binding:"required"`
			Amount int    `json:"amount" binding:"required"`
			Remark string `json:"remark"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Error("type and amount are required"))
			return
		}
		if req.Type != model.TxRedemption {
			c.JSON(http.StatusBadRequest, response.Error("Type must be redemption"))
			return
		}

		tx, err := h.txService.CreateRedemption(c.Request.Context(), callerID, service.RedemptionRequest{
			Amount: req.Amount,
			Remark: req.Remark,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, tx)
		return
	}

	var req struct {
		Type   string `json:"type" binding:"required"`
		Amount int    `json:"amount" binding:"required"`
		Remark string `json:"remark"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("type and amount are required"))
		return
	}
	if req.Type != model.TxTransfer {
		c.JSON(http.StatusBadRequest, response.Error("Type must be transfer"))
		return
	}

	tx, err := h.txService.CreateTransfer(c.Request.Context(), callerID, c.Param("userId"), service.TransferRequest{
		Amount: req.Amount,
		Remark: req.Remark,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// ListOwnTransactions handles GET /users/me/transactions
// @Summary      List own transactions
// @Tags         transactions
// @Produce      json
// @Security     BearerAuth
// @Param        type        query     string  false  "Transaction type"
// @Param        relatedId   query     string  false  "Related id, with type"
// @Param        promotionId query     string  false  "Promotion id"
// @Param        amount      query     int     false  "Amount bound"
// @Param        operator    query     string  false  "gte or lte"
// @Param        page        query     int     false  "Page number"
// @Param        limit       query     int     false  "Page size"
// @Success      200         {object}  response.ListBody
// @Router       /users/me/transactions [get]
func (h *UserHandler) ListOwnTransactions(c *gin.Context) {
	if !isMe(c) {
		c.JSON(http.StatusForbidden, response.Error("Access denied: insufficient permissions"))
		return
	}

	filter := repository.TransactionFilter{
		UserID:      middleware.CallerID(c),
		Type:        c.Query("type"),
		RelatedID:   c.Query("relatedId"),
		PromotionID: c.Query("promotionId"),
		Operator:    c.Query("operator"),
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

// RedemptionQR handles GET /users/me/transactions/:transactionId/qrcode,
// rendering the code a cashier scans to process the redemption.
// @Summary      Redemption QR code
// @Tags         transactions
// @Produce      png
// @Security     BearerAuth
// @Param        transactionId  path  string  true  "Redemption transaction id"
// @Success      200  {string}  binary  "PNG image"
// @Failure      400  {object}  response.ErrorBody
// @Failure      404  {object}  response.ErrorBody
// @Router       /users/me/transactions/{transactionId}/qrcode [get]
func (h *UserHandler) RedemptionQR(c *gin.Context) {
	if !isMe(c) {
		c.JSON(http.StatusForbidden, response.Error("Access denied: insufficient permissions"))
		return
	}

	png, err := h.txService.RedemptionQR(c.Request.Context(), middleware.CallerID(c), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// parseBoolQuery reads an optional boolean query parameter.
func parseBoolQuery(c *gin.Context, key string) (bool, bool) {
	raw := c.Query(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
