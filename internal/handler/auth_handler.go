package handler

import (
	"net/http"

	"campuspoints/internal/service"
	"campuspoints/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler sets up the routing dependencies for authentication endpoints
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup.
// All three are public: they are the only way in.
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := router.Group("/auth")
	{
		auth.POST("/tokens", h.Login)
		auth.POST("/resets", h.RequestReset)
		auth.POST("/resets/:resetToken", h.CompleteReset)
	}
}

// Login handles POST /auth/tokens to authenticate and return a bearer token
// @Summary      Authenticate
// @Description  Authenticates a user by utorid and password, returning a signed bearer token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Credentials"
// @Success      200      {object}  service.TokenResponse
// @Failure      400      {object}  response.ErrorBody
// @Failure      401      {object}  response.ErrorBody
// @Failure      403      {object}  response.ErrorBody
// @Router       /auth/tokens [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("utorid and password are required"))
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

// RequestReset handles POST /auth/resets to start the password-reset flow
// @Summary      Request password reset
// @Description  Issues a reset token for the given utorid, throttled to one request per client IP per 60 seconds
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RequestResetRequest  true  "Target utorid"
// @Success      202      {object}  service.ResetTokenResponse
// @Failure      400      {object}  response.ErrorBody
// @Failure      404      {object}  response.ErrorBody
// @Failure      429      {object}  response.ErrorBody
// @Router       /auth/resets [post]
func (h *AuthHandler) RequestReset(c *gin.Context) {
	var req service.RequestResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("utorid is required"))
		return
	}

	reset, err := h.authService.RequestReset(c.Request.Context(), req.Utorid, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, reset)
}

// CompleteReset handles POST /auth/resets/:resetToken to set a new password
// @Summary      Complete password reset
// @Description  Consumes a reset or activation token and sets the account password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        resetToken  path      string                        true  "Reset token"
// @Param        payload     body      service.CompleteResetRequest  true  "Utorid and new password"
// @Success      200         {object}  map[string]string
// @Failure      400         {object}  response.ErrorBody
// @Failure      401         {object}  response.ErrorBody
// @Failure      404         {object}  response.ErrorBody
// @Failure      410         {object}  response.ErrorBody
// @Router       /auth/resets/{resetToken} [post]
func (h *AuthHandler) CompleteReset(c *gin.Context) {
	var req service.CompleteResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("utorid and password are required"))
		return
	}

	if err := h.authService.CompleteReset(c.Request.Context(), c.Param("resetToken"), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}
