package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"campuspoints/internal/model"
	"campuspoints/internal/repository"

	"github.com/stretchr/testify/require"
)

func (f *fixture) makeOrganizer(t *testing.T, event *model.Event, user *model.User) {
	t.Helper()
	require.NoError(t, f.db.Create(&model.EventOrganizer{EventID: event.ID, UserID: user.ID}).Error)
}

func (f *fixture) makeGuest(t *testing.T, event *model.Event, user *model.User) {
	t.Helper()
	require.NoError(t, f.db.Create(&model.EventGuest{EventID: event.ID, UserID: user.ID, Confirmed: true}).Error)
}

func TestCreateEvent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	end := time.Now().Add(3 * time.Hour).UTC().Format(time.RFC3339)

	res, err := f.events.Create(ctx, CreateEventRequest{
		Name:        "Hackathon kickoff",
		Description: "Opening ceremony",
		Location:    "BA 1130",
		StartTime:   start,
		EndTime:     end,
		Capacity:    intPtr(50),
		Points:      500,
	})
	require.NoError(t, err)
	require.NotNil(t, res.PointsRemain)
	require.Equal(t, 500, *res.PointsRemain)
	require.Equal(t, 0, *res.PointsAwarded)
	require.False(t, *res.Published)

	_, err = f.events.Create(ctx, CreateEventRequest{
		Name: "bad", Description: "bad", Location: "x",
		StartTime: end, EndTime: start, Points: 10,
	})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = f.events.Create(ctx, CreateEventRequest{
		Name: "bad", Description: "bad", Location: "x",
		StartTime: start, EndTime: end, Capacity: intPtr(0), Points: 10,
	})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestEventVisibility(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	organizer := f.seedUser(t, "organize", model.RoleRegular, 0, true)
	regular := f.seedUser(t, "student1", model.RoleRegular, 0, true)

	draft := f.seedEvent(t, "secret planning", nil, 100, false)
	f.makeOrganizer(t, draft, organizer)

	_, err := f.events.Get(ctx, draft.ID.String(), regular.ID.String(), model.RoleRegular)
	requireStatus(t, err, http.StatusNotFound)

	// organizers and managers see unpublished events, pool included
	res, err := f.events.Get(ctx, draft.ID.String(), organizer.ID.String(), model.RoleRegular)
	require.NoError(t, err)
	require.NotNil(t, res.PointsRemain)

	res, err = f.events.Get(ctx, draft.ID.String(), "", model.RoleManager)
	require.NoError(t, err)
	require.NotNil(t, res.PointsRemain)

	// published events hide the pool from ordinary members
	published := f.seedEvent(t, "open mic", nil, 100, true)
	res, err = f.events.Get(ctx, published.ID.String(), regular.ID.String(), model.RoleRegular)
	require.NoError(t, err)
	require.Nil(t, res.PointsRemain)
	require.Nil(t, res.Published)
}

func TestRSVPAndCapacity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	event := f.seedEvent(t, "tiny venue", intPtr(1), 100, true)
	organizer := f.seedUser(t, "organize", model.RoleRegular, 0, true)
	f.makeOrganizer(t, event, organizer)

	first := f.seedUser(t, "student1", model.RoleRegular, 0, true)
	second := f.seedUser(t, "student2", model.RoleRegular, 0, true)

	res, err := f.events.RSVP(ctx, event.ID.String(), first.ID.String())
	require.NoError(t, err)
	require.Equal(t, int64(1), res.NumGuests)

	// duplicate RSVP
	_, err = f.events.RSVP(ctx, event.ID.String(), first.ID.String())
	requireStatus(t, err, http.StatusConflict)

	// at capacity
	_, err = f.events.RSVP(ctx, event.ID.String(), second.ID.String())
	requireStatus(t, err, http.StatusGone)

	// organizers cannot join their own guest list
	_, err = f.events.RSVP(ctx, event.ID.String(), organizer.ID.String())
	requireStatus(t, err, http.StatusBadRequest)

	// freeing the spot lets the next guest in
	require.NoError(t, f.events.CancelRSVP(ctx, event.ID.String(), first.ID.String()))
	_, err = f.events.RSVP(ctx, event.ID.String(), second.ID.String())
	require.NoError(t, err)
}

func TestRSVPUnpublishedHidden(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	event := f.seedEvent(t, "secret", nil, 100, false)
	student := f.seedUser(t, "student1", model.RoleRegular, 0, true)

	_, err := f.events.RSVP(ctx, event.ID.String(), student.ID.String())
	requireStatus(t, err, http.StatusNotFound)
}

func TestRSVPEndedEvent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	event := f.seedEvent(t, "over", nil, 100, true)
	event.StartTime = time.Now().Add(-3 * time.Hour)
	event.EndTime = time.Now().Add(-time.Hour)
	require.NoError(t, f.db.Save(event).Error)

	student := f.seedUser(t, "student1", model.RoleRegular, 0, true)
	_, err := f.events.RSVP(ctx, event.ID.String(), student.ID.String())
	requireStatus(t, err, http.StatusGone)
}

func TestOrganizerGuestExclusion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	event := f.seedEvent(t, "workshop", nil, 100, true)
	guest := f.seedUser(t, "student1", model.RoleRegular, 0, true)
	f.makeGuest(t, event, guest)

	// a guest cannot be promoted to organizer
	_, err := f.events.AddOrganizer(ctx, event.ID.String(), guest.Utorid)
	requireStatus(t, err, http.StatusBadRequest)

	helper := f.seedUser(t, "helper01", model.RoleRegular, 0, true)
	_, err = f.events.AddOrganizer(ctx, event.ID.String(), helper.Utorid)
	require.NoError(t, err)

	_, err = f.events.AddOrganizer(ctx, event.ID.String(), helper.Utorid)
	requireStatus(t, err, http.StatusConflict)
}

func TestEventAwardSingleGuest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	event := f.seedEvent(t, "career fair", nil, 100, true)
	organizer := f.seedUser(t, "organize", model.RoleRegular, 0, true)
	f.makeOrganizer(t, event, organizer)
	guest := f.seedUser(t, "student1", model.RoleRegular, 0, true)
	f.makeGuest(t, event, guest)

	txs, err := f.events.Award(ctx, event.ID.String(), organizer.ID.String(), model.RoleRegular, EventAwardRequest{
		Type:   model.TxEvent,
		Utorid: guest.Utorid,
		Amount: 30,
	})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, 30, txs[0].Amount)
	require.Equal(t, guest.Utorid, txs[0].Utorid)
	require.Equal(t, 30, f.balance(t, guest.ID.String()))

	var stored model.Event
	require.NoError(t, f.db.First(&stored, "id = ?", event.ID).Error)
	require.Equal(t, 70, stored.PointsRemain)
	require.Equal(t, 30, stored.PointsAwarded)
	require.Equal(t, stored.PointsTotal, stored.PointsRemain+stored.PointsAwarded)
}

func TestEventAwardAllGuestsPoolGuard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	event := f.seedEvent(t, "closing night", nil, 70, true)
	manager := f.seedUser(t, "manager1", model.RoleManager, 0, true)
	guestA := f.seedUser(t, "student1", model.RoleRegular, 0, true)
	guestB := f.seedUser(t, "student2", model.RoleRegular, 0, true)
	f.makeGuest(t, event, guestA)
	f.makeGuest(t, event, guestB)

	// 40 x 2 guests overruns the 70-point pool; nothing may change
	_, err := f.events.Award(ctx, event.ID.String(), manager.ID.String(), model.RoleManager, EventAwardRequest{
		Type:   model.TxEvent,
		Amount: 40,
	})
	requireStatus(t, err, http.StatusBadRequest)
	require.Equal(t, 0, f.balance(t, guestA.ID.String()))
	require.Equal(t, 0, f.balance(t, guestB.ID.String()))

	var stored model.Event
	require.NoError(t, f.db.First(&stored, "id = ?", event.ID).Error)
	require.Equal(t, 70, stored.PointsRemain)

	txs, err := f.events.Award(ctx, event.ID.String(), manager.ID.String(), model.RoleManager, EventAwardRequest{
		Type:   model.TxEvent,
		Amount: 30,
	})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, 30, f.balance(t, guestA.ID.String()))
	require.Equal(t, 30, f.balance(t, guestB.ID.String()))

	require.NoError(t, f.db.First(&stored, "id = ?", event.ID).Error)
	require.Equal(t, 10, stored.PointsRemain)
	require.Equal(t, 60, stored.PointsAwarded)
}

func TestEventAwardGuards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	event := f.seedEvent(t, "gala", nil, 100, true)
	outsider := f.seedUser(t, "outsider", model.RoleRegular, 0, true)
	guest := f.seedUser(t, "student1", model.RoleRegular, 0, true)
	f.makeGuest(t, event, guest)

	_, err := f.events.Award(ctx, event.ID.String(), outsider.ID.String(), model.RoleRegular, EventAwardRequest{
		Type: model.TxEvent, Amount: 10,
	})
	requireStatus(t, err, http.StatusForbidden)

	manager := f.seedUser(t, "manager1", model.RoleManager, 0, true)

	_, err = f.events.Award(ctx, event.ID.String(), manager.ID.String(), model.RoleManager, EventAwardRequest{
		Type: "bonus", Amount: 10,
	})
	requireStatus(t, err, http.StatusBadRequest)

	// awarding someone who never RSVPed
	_, err = f.events.Award(ctx, event.ID.String(), manager.ID.String(), model.RoleManager, EventAwardRequest{
		Type: model.TxEvent, Utorid: outsider.Utorid, Amount: 10,
	})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestEventUpdateGuards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	event := f.seedEvent(t, "seminar", intPtr(5), 100, true)
	organizer := f.seedUser(t, "organize", model.RoleRegular, 0, true)
	f.makeOrganizer(t, event, organizer)
	guest := f.seedUser(t, "student1", model.RoleRegular, 0, true)
	f.makeGuest(t, event, guest)

	// already started: details are locked, the end may still move
	_, err := f.events.Update(ctx, event.ID.String(), organizer.ID.String(), model.RoleRegular, UpdateEventRequest{
		Name: strPtr("renamed"),
	})
	requireStatus(t, err, http.StatusBadRequest)

	newEnd := time.Now().Add(4 * time.Hour).UTC().Format(time.RFC3339)
	_, err = f.events.Update(ctx, event.ID.String(), organizer.ID.String(), model.RoleRegular, UpdateEventRequest{
		EndTime: &newEnd,
	})
	require.NoError(t, err)

	// the pool and publishing are manager-only
	_, err = f.events.Update(ctx, event.ID.String(), organizer.ID.String(), model.RoleRegular, UpdateEventRequest{
		Points: intPtr(200),
	})
	requireStatus(t, err, http.StatusForbidden)

	res, err := f.events.Update(ctx, event.ID.String(), "", model.RoleManager, UpdateEventRequest{
		Points: intPtr(200),
	})
	require.NoError(t, err)
	require.Equal(t, 200, *res.PointsRemain)

	// outsiders may not update at all
	outsider := f.seedUser(t, "outsider", model.RoleRegular, 0, true)
	_, err = f.events.Update(ctx, event.ID.String(), outsider.ID.String(), model.RoleRegular, UpdateEventRequest{
		EndTime: &newEnd,
	})
	requireStatus(t, err, http.StatusForbidden)
}

func TestEventPointsFloorAtAwarded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	event := f.seedEvent(t, "seminar", nil, 100, true)
	manager := f.seedUser(t, "manager1", model.RoleManager, 0, true)
	guest := f.seedUser(t, "student1", model.RoleRegular, 0, true)
	f.makeGuest(t, event, guest)

	_, err := f.events.Award(ctx, event.ID.String(), manager.ID.String(), model.RoleManager, EventAwardRequest{
		Type: model.TxEvent, Utorid: guest.Utorid, Amount: 60,
	})
	require.NoError(t, err)

	_, err = f.events.Update(ctx, event.ID.String(), "", model.RoleManager, UpdateEventRequest{
		Points: intPtr(50),
	})
	requireStatus(t, err, http.StatusBadRequest)

	res, err := f.events.Update(ctx, event.ID.String(), "", model.RoleManager, UpdateEventRequest{
		Points: intPtr(80),
	})
	require.NoError(t, err)
	require.Equal(t, 20, *res.PointsRemain)
	require.Equal(t, 60, *res.PointsAwarded)
}

func TestDeletePublishedEvent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	published := f.seedEvent(t, "launched", nil, 100, true)
	err := f.events.Delete(ctx, published.ID.String())
	requireStatus(t, err, http.StatusBadRequest)

	draft := f.seedEvent(t, "draft", nil, 100, false)
	require.NoError(t, f.events.Delete(ctx, draft.ID.String()))
	_, err = f.events.Get(ctx, draft.ID.String(), "", model.RoleManager)
	requireStatus(t, err, http.StatusNotFound)
}

func TestListEventsExcludesFullByDefault(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	full := f.seedEvent(t, "packed", intPtr(1), 100, true)
	f.seedEvent(t, "roomy", intPtr(10), 100, true)
	f.seedEvent(t, "hidden draft", nil, 100, false)

	guest := f.seedUser(t, "student1", model.RoleRegular, 0, true)
	f.makeGuest(t, full, guest)

	// regulars: published only, full excluded
	events, total, err := f.events.List(ctx, repository.EventFilter{ExcludeFull: true}, model.RoleRegular, 0, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "roomy", events[0].Name)

	// managers see everything when not filtering
	_, total, err = f.events.List(ctx, repository.EventFilter{}, model.RoleManager, 0, 10)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
}
