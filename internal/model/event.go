package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is a points-awarding happening with a fixed pool of points.
// Invariant: PointsAwarded + PointsRemain == PointsTotal at all times;
// awards decrement PointsRemain with a conditional update so the pool can
// never go negative.
type Event struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string           `gorm:"type:varchar(100);not null" json:"name"`
	Description   string           `gorm:"type:text;not null" json:"description"`
	Location      string           `gorm:"type:varchar(100);not null" json:"location"`
	StartTime     time.Time        `gorm:"not null" json:"startTime"`
	EndTime       time.Time        `gorm:"not null" json:"endTime"`
	Capacity      *int             `json:"capacity"`
	PointsTotal   int              `gorm:"not null" json:"-"`
	PointsRemain  int              `gorm:"not null" json:"-"`
	PointsAwarded int              `gorm:"not null;default:0" json:"-"`
	Published     bool             `gorm:"not null;default:false" json:"-"`
	Organizers    []EventOrganizer `gorm:"foreignKey:EventID" json:"-"`
	Guests        []EventGuest     `gorm:"foreignKey:EventID" json:"-"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"-"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"-"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Ended reports whether the event has finished relative to now.
func (e *Event) Ended(now time.Time) bool {
	return !now.Before(e.EndTime)
}

// EventOrganizer links a user as organizer of an event.
type EventOrganizer struct {
	EventID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_event_org,priority:1" json:"-"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_event_org,priority:2" json:"-"`
	User      *User     `gorm:"foreignKey:UserID" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

func (EventOrganizer) TableName() string {
	return "event_organizers"
}

// EventGuest links a user as guest of an event. Confirmed guests count
// against the event capacity.
type EventGuest struct {
	EventID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_event_guest,priority:1" json:"-"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_event_guest,priority:2" json:"-"`
	User      *User     `gorm:"foreignKey:UserID" json:"-"`
	Confirmed bool      `gorm:"not null;default:true" json:"confirmed"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

func (EventGuest) TableName() string {
	return "event_guests"
}
