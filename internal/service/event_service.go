package service

import (
	"context"
	"errors"
	"time"

	"campuspoints/internal/model"
	"campuspoints/internal/repository"
	"campuspoints/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DTOs for Request validation
type CreateEventRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description" binding:"required"`
	Location    string `json:"location" binding:"required"`
	StartTime   string `json:"startTime" binding:"required"`
	EndTime     string `json:"endTime" binding:"required"`
	Capacity    *int   `json:"capacity"`
	Points      int    `json:"points" binding:"required"`
}

type UpdateEventRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	StartTime   *string `json:"startTime"`
	EndTime     *string `json:"endTime"`
	Capacity    *int    `json:"capacity"`
	Points      *int    `json:"points"`
	Published   *bool   `json:"published"`
}

type AddMemberRequest struct {
	Utorid string `json:"utorid" binding:"required"`
}

type EventAwardRequest struct {
	Type   string `json:"type" binding:"required"`
	Utorid string `json:"utorid"`
	Amount int    `json:"amount" binding:"required"`
}

type EventMember struct {
	ID     uuid.UUID `json:"id"`
	Utorid string    `json:"utorid"`
	Name   string    `json:"name"`
}

// EventResponse is the wire shape of an event. Pool and guest details are
// only populated for organizers and managers.
type EventResponse struct {
	ID            uuid.UUID     `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Location      string        `json:"location"`
	StartTime     string        `json:"startTime"`
	EndTime       string        `json:"endTime"`
	Capacity      *int          `json:"capacity"`
	NumGuests     int64         `json:"numGuests"`
	Organizers    []EventMember `json:"organizers"`
	Guests        []EventMember `json:"guests,omitempty"`
	PointsRemain  *int          `json:"pointsRemain,omitempty"`
	PointsAwarded *int          `json:"pointsAwarded,omitempty"`
	Published     *bool         `json:"published,omitempty"`
}

// EventService defines the interface for business logic related to events,
// their organizer/guest sets, and award distribution from the points pool.
type EventService interface {
	Create(ctx context.Context, req CreateEventRequest) (*EventResponse, error)
	Get(ctx context.Context, id, callerID, callerRole string) (*EventResponse, error)
	List(ctx context.Context, filter repository.EventFilter, callerRole string, offset, limit int) ([]EventResponse, int64, error)
	Update(ctx context.Context, id, callerID, callerRole string, req UpdateEventRequest) (*EventResponse, error)
	Delete(ctx context.Context, id string) error

	AddOrganizer(ctx context.Context, eventID, utorid string) (*EventResponse, error)
	RemoveOrganizer(ctx context.Context, eventID, userID string) error
	AddGuest(ctx context.Context, eventID, callerID, callerRole, utorid string) (*EventResponse, error)
	RemoveGuest(ctx context.Context, eventID, userID string) error
	RSVP(ctx context.Context, eventID, userID string) (*EventResponse, error)
	CancelRSVP(ctx context.Context, eventID, userID string) error

	// Award distributes points from the event pool to one confirmed guest or
	// to all of them, atomically: the pool decrement, every ledger row, and
	// every balance credit commit together or not at all.
	Award(ctx context.Context, eventID, callerID, callerRole string, req EventAwardRequest) ([]TransactionResponse, error)
}

type eventService struct {
	eventRepo repository.EventRepository
	userRepo  repository.UserRepository
	txRepo    repository.TransactionRepository
	txManager repository.TransactionManager
}

// NewEventService returns a new instance of EventService
func NewEventService(
	eventRepo repository.EventRepository,
	userRepo repository.UserRepository,
	txRepo repository.TransactionRepository,
	txManager repository.TransactionManager,
) EventService {
	return &eventService{
		eventRepo: eventRepo,
		userRepo:  userRepo,
		txRepo:    txRepo,
		txManager: txManager,
	}
}

func (s *eventService) Create(ctx context.Context, req CreateEventRequest) (*EventResponse, error) {
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return nil, apperr.BadRequest("startTime must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return nil, apperr.BadRequest("endTime must be RFC3339")
	}
	if !end.After(start) {
		return nil, apperr.BadRequest("endTime must be after startTime")
	}
	if req.Capacity != nil && *req.Capacity <= 0 {
		return nil, apperr.BadRequest("capacity must be a positive integer")
	}
	if req.Points <= 0 {
		return nil, apperr.BadRequest("points must be a positive integer")
	}

	event := &model.Event{
		Name:         req.Name,
		Description:  req.Description,
		Location:     req.Location,
		StartTime:    start,
		EndTime:      end,
		Capacity:     req.Capacity,
		PointsTotal:  req.Points,
		PointsRemain: req.Points,
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, err
	}

	return s.toResponse(ctx, event, true)
}

func (s *eventService) Get(ctx context.Context, id, callerID, callerRole string) (*EventResponse, error) {
	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Event not found")
		}
		return nil, err
	}

	privileged, err := s.canManage(ctx, event.ID.String(), callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if !privileged && !event.Published {
		return nil, apperr.NotFound("Event not found")
	}

	return s.toResponse(ctx, event, privileged)
}

func (s *eventService) List(ctx context.Context, filter repository.EventFilter, callerRole string, offset, limit int) ([]EventResponse, int64, error) {
	if filter.Started != nil && filter.Ended != nil {
		return nil, 0, apperr.BadRequest("Specify either started or ended, not both")
	}

	privileged := model.RoleAtLeast(callerRole, model.RoleManager)
	if !privileged {
		published := true
		filter.Published = &published
	}

	events, total, err := s.eventRepo.List(ctx, filter, time.Now(), offset, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]EventResponse, 0, len(events))
	for i := range events {
		entry, err := s.toResponse(ctx, &events[i], privileged)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, *entry)
	}
	return res, total, nil
}

func (s *eventService) Update(ctx context.Context, id, callerID, callerRole string, req UpdateEventRequest) (*EventResponse, error) {
	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Event not found")
		}
		return nil, err
	}

	privileged, err := s.canManage(ctx, event.ID.String(), callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if !privileged {
		return nil, apperr.Forbidden("Only organizers and managers may update an event")
	}

	now := time.Now()
	started := !now.Before(event.StartTime)
	ended := event.Ended(now)

	if started && (req.Name != nil || req.Description != nil || req.Location != nil ||
		req.StartTime != nil || req.Capacity != nil) {
		return nil, apperr.BadRequest("Cannot edit event details after it has started")
	}
	if ended && req.EndTime != nil {
		return nil, apperr.BadRequest("Cannot edit endTime after the event has ended")
	}

	if req.Name != nil {
		event.Name = *req.Name
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.Location != nil {
		event.Location = *req.Location
	}
	if req.StartTime != nil {
		start, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			return nil, apperr.BadRequest("startTime must be RFC3339")
		}
		event.StartTime = start
	}
	if req.EndTime != nil {
		end, err := time.Parse(time.RFC3339, *req.EndTime)
		if err != nil {
			return nil, apperr.BadRequest("endTime must be RFC3339")
		}
		event.EndTime = end
	}
	if !event.EndTime.After(event.StartTime) {
		return nil, apperr.BadRequest("endTime must be after startTime")
	}
	if req.Capacity != nil {
		if *req.Capacity <= 0 {
			return nil, apperr.BadRequest("capacity must be a positive integer")
		}
		confirmed, err := s.eventRepo.CountConfirmedGuests(ctx, event.ID.String())
		if err != nil {
			return nil, err
		}
		if int64(*req.Capacity) < confirmed {
			return nil, apperr.BadRequest("capacity cannot be reduced below the confirmed guest count")
		}
		event.Capacity = req.Capacity
	}
	if req.Points != nil {
		if !model.RoleAtLeast(callerRole, model.RoleManager) {
			return nil, apperr.Forbidden("Only managers may change the points pool")
		}
		if *req.Points < event.PointsAwarded {
			return nil, apperr.BadRequest("points cannot be reduced below the amount already awarded")
		}
		event.PointsTotal = *req.Points
		event.PointsRemain = *req.Points - event.PointsAwarded
	}
	if req.Published != nil {
		if !model.RoleAtLeast(callerRole, model.RoleManager) {
			return nil, apperr.Forbidden("Only managers may publish an event")
		}
		if !*req.Published {
			return nil, apperr.BadRequest("Published can only be set to true")
		}
		event.Published = true
	}

	if err := s.eventRepo.Update(ctx, event); err != nil {
		return nil, err
	}
	return s.toResponse(ctx, event, true)
}

func (s *eventService) Delete(ctx context.Context, id string) error {
	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Event not found")
		}
		return err
	}
	if event.Published {
		return apperr.BadRequest("Cannot delete a published event")
	}
	return s.eventRepo.Delete(ctx, id)
}

func (s *eventService) AddOrganizer(ctx context.Context, eventID, utorid string) (*EventResponse, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Event not found")
		}
		return nil, err
	}
	if event.Ended(time.Now()) {
		return nil, apperr.Gone("Event has ended")
	}

	user, err := s.userRepo.GetByUtorid(ctx, utorid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, err
	}

	if _, err := s.eventRepo.GetGuest(ctx, eventID, user.ID.String()); err == nil {
		return nil, apperr.BadRequest("User is registered as a guest of this event")
	}
	if isOrg, err := s.eventRepo.IsOrganizer(ctx, eventID, user.ID.String()); err != nil {
		return nil, err
	} else if isOrg {
		return nil, apperr.Conflict("User is already an organizer")
	}

	if err := s.eventRepo.AddOrganizer(ctx, &model.EventOrganizer{
		EventID: event.ID,
		UserID:  user.ID,
	}); err != nil {
		return nil, err
	}

	event, err = s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, event, true)
}

func (s *eventService) RemoveOrganizer(ctx context.Context, eventID, userID string) error {
	removed, err := s.eventRepo.RemoveOrganizer(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.NotFound("Organizer not found")
	}
	return nil
}

func (s *eventService) AddGuest(ctx context.Context, eventID, callerID, callerRole, utorid string) (*EventResponse, error) {
	privileged, err := s.canManage(ctx, eventID, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if !privileged {
		return nil, apperr.Forbidden("Only organizers and managers may add guests")
	}

	user, err := s.userRepo.GetByUtorid(ctx, utorid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, err
	}

	return s.addGuest(ctx, eventID, user, false)
}

func (s *eventService) RSVP(ctx context.Context, eventID, userID string) (*EventResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.addGuest(ctx, eventID, user, true)
}

func (s *eventService) addGuest(ctx context.Context, eventID string, user *model.User, selfServe bool) (*EventResponse, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Event not found")
		}
		return nil, err
	}
	if selfServe && !event.Published {
		return nil, apperr.NotFound("Event not found")
	}
	if event.Ended(time.Now()) {
		return nil, apperr.Gone("Event has ended")
	}

	if isOrg, err := s.eventRepo.IsOrganizer(ctx, eventID, user.ID.String()); err != nil {
		return nil, err
	} else if isOrg {
		return nil, apperr.BadRequest("User is an organizer of this event")
	}
	if _, err := s.eventRepo.GetGuest(ctx, eventID, user.ID.String()); err == nil {
		return nil, apperr.Conflict("User is already on the guest list")
	}

	if event.Capacity != nil {
		confirmed, err := s.eventRepo.CountConfirmedGuests(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if confirmed >= int64(*event.Capacity) {
			return nil, apperr.Gone("Event is full")
		}
	}

	if err := s.eventRepo.AddGuest(ctx, &model.EventGuest{
		EventID:   event.ID,
		UserID:    user.ID,
		Confirmed: true,
	}); err != nil {
		return nil, err
	}

	event, err = s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, event, !selfServe)
}

func (s *eventService) RemoveGuest(ctx context.Context, eventID, userID string) error {
	removed, err := s.eventRepo.RemoveGuest(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.NotFound("Guest not found")
	}
	return nil
}

func (s *eventService) CancelRSVP(ctx context.Context, eventID, userID string) error {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Event not found")
		}
		return err
	}
	if event.Ended(time.Now()) {
		return apperr.Gone("Event has ended")
	}
	return s.RemoveGuest(ctx, eventID, userID)
}

func (s *eventService) Award(ctx context.Context, eventID, callerID, callerRole string, req EventAwardRequest) ([]TransactionResponse, error) {
	if req.Type != model.TxEvent {
		return nil, apperr.BadRequest("Type must be event")
	}
	if req.Amount <= 0 {
		return nil, apperr.BadRequest("Amount must be a positive integer")
	}

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Event not found")
		}
		return nil, err
	}

	privileged, err := s.canManage(ctx, eventID, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if !privileged {
		return nil, apperr.Forbidden("Only organizers and managers may award event points")
	}

	creator, err := s.userRepo.GetByID(ctx, callerID)
	if err != nil {
		return nil, err
	}

	var recipients []model.EventGuest
	if req.Utorid != "" {
		user, err := s.userRepo.GetByUtorid(ctx, req.Utorid)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("User not found")
			}
			return nil, err
		}
		guest, err := s.eventRepo.GetGuest(ctx, eventID, user.ID.String())
		if err != nil || !guest.Confirmed {
			return nil, apperr.BadRequest("User is not a confirmed guest of this event")
		}
		guest.User = user
		recipients = []model.EventGuest{*guest}
	} else {
		recipients, err = s.eventRepo.ListConfirmedGuests(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if len(recipients) == 0 {
			return nil, apperr.BadRequest("Event has no confirmed guests")
		}
	}

	total := req.Amount * len(recipients)

	now := time.Now()
	created := make([]*model.Transaction, 0, len(recipients))
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		ok, err := s.eventRepo.DebitPool(txCtx, eventID, total)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.BadRequest("Event does not have enough remaining points")
		}
		for i := range recipients {
			guest := &recipients[i]
			tx := &model.Transaction{
				Type:        model.TxEvent,
				Amount:      req.Amount,
				UserID:      guest.UserID,
				CreatedByID: creator.ID,
				EventID:     &event.ID,
				Processed:   true,
				ProcessedAt: &now,
				Remark:      event.Name,
			}
			if err := s.txRepo.Create(txCtx, tx); err != nil {
				return err
			}
			if err := s.userRepo.CreditPoints(txCtx, guest.UserID.String(), req.Amount); err != nil {
				return err
			}
			created = append(created, tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := make([]TransactionResponse, 0, len(created))
	for i, tx := range created {
		res = append(res, *toTransactionResponse(tx, recipients[i].User, creator))
	}
	return res, nil
}

// canManage reports whether the caller may see or edit the event's privileged
// fields: managers always, organizers for their own events.
func (s *eventService) canManage(ctx context.Context, eventID, callerID, callerRole string) (bool, error) {
	if model.RoleAtLeast(callerRole, model.RoleManager) {
		return true, nil
	}
	if callerID == "" {
		return false, nil
	}
	return s.eventRepo.IsOrganizer(ctx, eventID, callerID)
}

func (s *eventService) toResponse(ctx context.Context, event *model.Event, privileged bool) (*EventResponse, error) {
	confirmed, err := s.eventRepo.CountConfirmedGuests(ctx, event.ID.String())
	if err != nil {
		return nil, err
	}

	organizers := make([]EventMember, 0, len(event.Organizers))
	for _, o := range event.Organizers {
		if o.User != nil {
			organizers = append(organizers, EventMember{ID: o.User.ID, Utorid: o.User.Utorid, Name: o.User.Name})
		}
	}

	res := &EventResponse{
		ID:          event.ID,
		Name:        event.Name,
		Description: event.Description,
		Location:    event.Location,
		StartTime:   event.StartTime.UTC().Format(time.RFC3339),
		EndTime:     event.EndTime.UTC().Format(time.RFC3339),
		Capacity:    event.Capacity,
		NumGuests:   confirmed,
		Organizers:  organizers,
	}

	if privileged {
		guests := make([]EventMember, 0, len(event.Guests))
		for _, g := range event.Guests {
			if g.User != nil {
				guests = append(guests, EventMember{ID: g.User.ID, Utorid: g.User.Utorid, Name: g.User.Name})
			}
		}
		remain := event.PointsRemain
		awarded := event.PointsAwarded
		published := event.Published
		res.Guests = guests
		res.PointsRemain = &remain
		res.PointsAwarded = &awarded
		res.Published = &published
	}

	return res, nil
}
