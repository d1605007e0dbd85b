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

type EventHandler struct {
	eventService service.EventService
}

// NewEventHandler sets up the routing dependencies for Event endpoints
func NewEventHandler(eventService service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup.
// Guest routes use "me" dispatch: POST /events/:eventId/guests/me is the
// caller's own RSVP, while the utorid-bearing POST /events/:eventId/guests
// is reserved for organizers and managers.
func (h *EventHandler) RegisterRoutes(router *gin.RouterGroup) {
	events := router.Group("/events")
	{
		events.POST("", middleware.RequireRole(model.RoleManager), h.Create)
		events.GET("", middleware.RequireAuth(), h.List)
		events.GET("/:eventId", middleware.RequireAuth(), h.Get)
		events.PATCH("/:eventId", middleware.RequireAuth(), h.Update)
		events.DELETE("/:eventId", middleware.RequireRole(model.RoleManager), h.Delete)

		events.POST("/:eventId/organizers", middleware.RequireRole(model.RoleManager), h.AddOrganizer)
		events.DELETE("/:eventId/organizers/:userId", middleware.RequireRole(model.RoleManager), h.RemoveOrganizer)

		events.POST("/:eventId/guests", middleware.RequireAuth(), h.AddGuest)
		events.POST("/:eventId/guests/me", middleware.RequireAuth(), h.RSVP)
		events.DELETE("/:eventId/guests/:userId", middleware.RequireAuth(), h.RemoveGuest)

		events.POST("/:eventId/transactions", middleware.RequireAuth(), h.Award)
	}
}

// Create handles POST /events
// @Summary      Create event
// @Tags         events
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateEventRequest  true  "New event"
// @Success      201      {object}  service.EventResponse
// @Failure      400      {object}  response.ErrorBody
// @Router       /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req service.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("name, description, location, startTime, endTime, and points are required"))
		return
	}

	event, err := h.eventService.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// List handles GET /events with filters and pagination
// @Summary      List events
// @Description  Non-managers only see published events; showFull includes events at capacity
// @Tags         events
// @Produce      json
// @Security     BearerAuth
// @Param        name       query     string  false  "Name substring"
// @Param        location   query     string  false  "Location substring"
// @Param        started    query     bool    false  "Started filter"
// @Param        ended      query     bool    false  "Ended filter"
// @Param        showFull   query     bool    false  "Include events at capacity"
// @Param        published  query     bool    false  "Published filter (manager only)"
// @Param        page       query     int     false  "Page number"
// @Param        limit      query     int     false  "Page size"
// @Success      200        {object}  response.ListBody
// @Failure      400        {object}  response.ErrorBody
// @Router       /events [get]
func (h *EventHandler) List(c *gin.Context) {
	filter := repository.EventFilter{
		Name:     c.Query("name"),
		Location: c.Query("location"),
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
	if showFull, ok := parseBoolQuery(c, "showFull"); !ok || !showFull {
		filter.ExcludeFull = true
	}
	if published, ok := parseBoolQuery(c, "published"); ok {
		filter.Published = &published
	}

	p := pagination.Parse(c)
	events, total, err := h.eventService.List(c.Request.Context(), filter, middleware.CallerRole(c), p.Offset, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.List(total, events))
}

// Get handles GET /events/:eventId
// @Summary      Get event
// @Tags         events
// @Produce      json
// @Security     BearerAuth
// @Param        eventId  path      string  true  "Event id"
// @Success      200      {object}  service.EventResponse
// @Failure      404      {object}  response.ErrorBody
// @Router       /events/{eventId} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.eventService.Get(c.Request.Context(), c.Param("eventId"), middleware.CallerID(c), middleware.CallerRole(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// Update handles PATCH /events/:eventId for organizers and managers
// @Summary      Update event
// @Description  Details are locked once the event starts; the points pool and publishing are manager-only
// @Tags         events
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        eventId  path      string                      true  "Event id"
// @Param        payload  body      service.UpdateEventRequest  true  "Fields to change"
// @Success      200      {object}  service.EventResponse
// @Failure      400      {object}  response.ErrorBody
// @Failure      403      {object}  response.ErrorBody
// @Failure      404      {object}  response.ErrorBody
// @Router       /events/{eventId} [patch]
func (h *EventHandler) Update(c *gin.Context) {
	var req service.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("Invalid request payload"))
		return
	}

	event, err := h.eventService.Update(c.Request.Context(), c.Param("eventId"), middleware.CallerID(c), middleware.CallerRole(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// Delete handles DELETE /events/:eventId
// @Summary      Delete event
// @Description  Published events cannot be removed
// @Tags         events
// @Security     BearerAuth
// @Param        eventId  path  string  true  "Event id"
// @Success      204
// @Failure      400  {object}  response.ErrorBody
// @Failure      404  {object}  response.ErrorBody
// @Router       /events/{eventId} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	if err := h.eventService.Delete(c.Request.Context(), c.Param("eventId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddOrganizer handles POST /events/:eventId/organizers
// @Summary      Add organizer
// @Tags         events
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        eventId  path      string                    true  "Event id"
// @Param        payload  body      service.AddMemberRequest  true  "Organizer utorid"
// @Success      201      {object}  service.EventResponse
// @Failure      400      {object}  response.ErrorBody
// @Failure      404      {object}  response.ErrorBody
// @Failure      409      {object}  response.ErrorBody
// @Failure      410      {object}  response.ErrorBody
// @Router       /events/{eventId}/organizers [post]
func (h *EventHandler) AddOrganizer(c *gin.Context) {
	var req service.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("utorid is required"))
		return
	}

	event, err := h.eventService.AddOrganizer(c.Request.Context(), c.Param("eventId"), req.Utorid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// RemoveOrganizer handles DELETE /events/:eventId/organizers/:userId
// @Summary      Remove organizer
// @Tags         events
// @Security     BearerAuth
// @Param        eventId  path  string  true  "Event id"
// @Param        userId   path  string  true  "Organizer user id"
// @Success      204
// @Failure      404  {object}  response.ErrorBody
// @Router       /events/{eventId}/organizers/{userId} [delete]
func (h *EventHandler) RemoveOrganizer(c *gin.Context) {
	if err := h.eventService.RemoveOrganizer(c.Request.Context(), c.Param("eventId"), c.Param("userId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RSVP handles POST /events/:eventId/guests/me
// @Summary      RSVP to an event
// @Tags         events
// @Produce      json
// @Security     BearerAuth
// @Param        eventId  path      string  true  "Event id"
// @Success      201      {object}  service.EventResponse
// @Failure      404      {object}  response.ErrorBody
// @Failure      409      {object}  response.ErrorBody
// @Failure      410      {object}  response.ErrorBody
// @Router       /events/{eventId}/guests/me [post]
func (h *EventHandler) RSVP(c *gin.Context) {
	event, err := h.eventService.RSVP(c.Request.Context(), c.Param("eventId"), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// AddGuest handles POST /events/:eventId/guests. A body without a utorid is
// the caller's own RSVP; a utorid-bearing body requires organizer or manager.
// @Summary      Add guest or RSVP
// @Tags         events
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        eventId  path      string                    true   "Event id"
// @Param        payload  body      service.AddMemberRequest  false  "Guest utorid, omit to RSVP yourself"
// @Success      201      {object}  service.EventResponse
// @Failure      400      {object}  response.ErrorBody
// @Failure      403      {object}  response.ErrorBody
// @Failure      404      {object}  response.ErrorBody
// @Failure      409      {object}  response.ErrorBody
// @Failure      410      {object}  response.ErrorBody
// @Router       /events/{eventId}/guests [post]
func (h *EventHandler) AddGuest(c *gin.Context) {
	var req struct {
		Utorid string `json:"utorid"`
	}
	_ = c.ShouldBindJSON(&req)

	if req.Utorid == "" {
		event, err := h.eventService.RSVP(c.Request.Context(), c.Param("eventId"), middleware.CallerID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, event)
		return
	}

	event, err := h.eventService.AddGuest(c.Request.Context(), c.Param("eventId"), middleware.CallerID(c), middleware.CallerRole(c), req.Utorid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// RemoveGuest handles DELETE /events/:eventId/guests/:userId, with "me"
// resolving to the caller's own RSVP. Removing another guest is manager-only.
// @Summary      Remove guest or cancel RSVP
// @Tags         events
// @Security     BearerAuth
// @Param        eventId  path  string  true  "Event id"
// @Param        userId   path  string  true  "Guest user id or me"
// @Success      204
// @Failure      403  {object}  response.ErrorBody
// @Failure      404  {object}  response.ErrorBody
// @Failure      410  {object}  response.ErrorBody
// @Router       /events/{eventId}/guests/{userId} [delete]
func (h *EventHandler) RemoveGuest(c *gin.Context) {
	if isMe(c) {
		if err := h.eventService.CancelRSVP(c.Request.Context(), c.Param("eventId"), middleware.CallerID(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
		return
	}

	if !model.RoleAtLeast(middleware.CallerRole(c), model.RoleManager) {
		c.JSON(http.StatusForbidden, response.Error("Access denied: insufficient permissions"))
		return
	}
	if err := h.eventService.RemoveGuest(c.Request.Context(), c.Param("eventId"), c.Param("userId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Award handles POST /events/:eventId/transactions for organizers and managers
// @Summary      Award event points
// @Description  Awards points from the event pool to one confirmed guest or, when utorid is omitted, to every confirmed guest
// @Tags         events
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        eventId  path      string                     true  "Event id"
// @Param        payload  body      service.EventAwardRequest  true  "Award"
// @Success      201      {array}   service.TransactionResponse
// @Failure      400      {object}  response.ErrorBody
// @Failure      403      {object}  response.ErrorBody
// @Failure      404      {object}  response.ErrorBody
// @Router       /events/{eventId}/transactions [post]
func (h *EventHandler) Award(c *gin.Context) {
	var req service.EventAwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error("type and amount are required"))
		return
	}

	txs, err := h.eventService.Award(c.Request.Context(), c.Param("eventId"), middleware.CallerID(c), middleware.CallerRole(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txs)
}
