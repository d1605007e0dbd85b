package repository

import (
	"context"
	"time"

	"campuspoints/internal/model"

	"gorm.io/gorm"
)

// EventFilter narrows List results. Zero-valued fields are ignored.
type EventFilter struct {
	Name        string
	Location    string
	Published   *bool
	Started     *bool
	Ended       *bool
	ExcludeFull bool
}

// EventRepository defines the interface for data access of events and their
// organizer/guest sets.
type EventRepository interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context, filter EventFilter, now time.Time, offset, limit int) ([]model.Event, int64, error)
	Update(ctx context.Context, e *model.Event) error
	Delete(ctx context.Context, id string) error

	AddOrganizer(ctx context.Context, o *model.EventOrganizer) error
	RemoveOrganizer(ctx context.Context, eventID, userID string) (bool, error)
	IsOrganizer(ctx context.Context, eventID, userID string) (bool, error)

	AddGuest(ctx context.Context, g *model.EventGuest) error
	RemoveGuest(ctx context.Context, eventID, userID string) (bool, error)
	GetGuest(ctx context.Context, eventID, userID string) (*model.EventGuest, error)
	CountConfirmedGuests(ctx context.Context, eventID string) (int64, error)
	ListConfirmedGuests(ctx context.Context, eventID string) ([]model.EventGuest, error)

	// DebitPool decrements the event's remaining points pool only when it
	// covers total, moving the debited amount to PointsAwarded. The guard
	// inside the UPDATE keeps the pool from ever going negative under
	// concurrent awards.
	DebitPool(ctx context.Context, eventID string, total int) (bool, error)
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository returns a new instance of EventRepository
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, e *model.Event) error {
	return GetDB(ctx, r.db).Create(e).Error
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	if err := GetDB(ctx, r.db).
		Preload("Organizers.User").Preload("Guests.User").
		First(&e, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *eventRepository) List(ctx context.Context, filter EventFilter, now time.Time, offset, limit int) ([]model.Event, int64, error) {
	q := GetDB(ctx, r.db).Model(&model.Event{})

	if filter.Name != "" {
		q = q.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.Location != "" {
		q = q.Where("location LIKE ?", "%"+filter.Location+"%")
	}
	if filter.Published != nil {
		q = q.Where("published = ?", *filter.Published)
	}
	if filter.Started != nil {
		if *filter.Started {
			q = q.Where("start_time <= ?", now)
		} else {
			q = q.Where("start_time > ?", now)
		}
	}
	if filter.Ended != nil {
		if *filter.Ended {
			q = q.Where("end_time <= ?", now)
		} else {
			q = q.Where("end_time > ?", now)
		}
	}
	if filter.ExcludeFull {
		q = q.Where("capacity IS NULL OR capacity > (?)",
			GetDB(ctx, r.db).Model(&model.EventGuest{}).Select("COUNT(*)").
				Where("event_guests.event_id = events.id AND confirmed = ?", true))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []model.Event
	if err := q.Preload("Organizers.User").Preload("Guests.User").
		Order("start_time asc").Offset(offset).Limit(limit).Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *eventRepository) Update(ctx context.Context, e *model.Event) error {
	return GetDB(ctx, r.db).Save(e).Error
}

func (r *eventRepository) Delete(ctx context.Context, id string) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("event_id = ?", id).Delete(&model.EventOrganizer{}).Error; err != nil {
		return err
	}
	if err := db.Where("event_id = ?", id).Delete(&model.EventGuest{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.Event{}).Error
}

func (r *eventRepository) AddOrganizer(ctx context.Context, o *model.EventOrganizer) error {
	return GetDB(ctx, r.db).Create(o).Error
}

func (r *eventRepository) RemoveOrganizer(ctx context.Context, eventID, userID string) (bool, error) {
	res := GetDB(ctx, r.db).Where("event_id = ? AND user_id = ?", eventID, userID).
		Delete(&model.EventOrganizer{})
	return res.RowsAffected > 0, res.Error
}

func (r *eventRepository) IsOrganizer(ctx context.Context, eventID, userID string) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.EventOrganizer{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *eventRepository) AddGuest(ctx context.Context, g *model.EventGuest) error {
	return GetDB(ctx, r.db).Create(g).Error
}

func (r *eventRepository) RemoveGuest(ctx context.Context, eventID, userID string) (bool, error) {
	res := GetDB(ctx, r.db).Where("event_id = ? AND user_id = ?", eventID, userID).
		Delete(&model.EventGuest{})
	return res.RowsAffected > 0, res.Error
}

func (r *eventRepository) GetGuest(ctx context.Context, eventID, userID string) (*model.EventGuest, error) {
	var g model.EventGuest
	if err := GetDB(ctx, r.db).
		First(&g, "event_id = ? AND user_id = ?", eventID, userID).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *eventRepository) CountConfirmedGuests(ctx context.Context, eventID string) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.EventGuest{}).
		Where("event_id = ? AND confirmed = ?", eventID, true).
		Count(&count).Error
	return count, err
}

func (r *eventRepository) ListConfirmedGuests(ctx context.Context, eventID string) ([]model.EventGuest, error) {
	var guests []model.EventGuest
	err := GetDB(ctx, r.db).Preload("User").
		Where("event_id = ? AND confirmed = ?", eventID, true).
		Order("created_at asc").
		Find(&guests).Error
	return guests, err
}

func (r *eventRepository) DebitPool(ctx context.Context, eventID string, total int) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Event{}).
		Where("id = ? AND points_remain >= ?", eventID, total).
		Updates(map[string]interface{}{
			"points_remain":  gorm.Expr("points_remain - ?", total),
			"points_awarded": gorm.Expr("points_awarded + ?", total),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
