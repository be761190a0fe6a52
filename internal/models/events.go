package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventApproved  EventStatus = "approved"
	EventCancelled EventStatus = "cancelled"
)

type Event struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title" validate:"required,max=200"`
	Description     string      `json:"description"`
	StartDate       time.Time   `json:"start_date" validate:"required"`
	EndDate         time.Time   `json:"end_date" validate:"required"`
	Location        string      `json:"location,omitempty"`
	MaxParticipants int         `json:"max_participants" validate:"gte=0"`
	IsPrivate       bool        `json:"is_private"`
	EventType       string      `json:"event_type" validate:"required,oneof=club public private booking special"`
	Status          EventStatus `json:"status" validate:"required,oneof=pending approved cancelled"`
	SourceRequestID *uuid.UUID  `json:"source_request_id,omitempty"`
	CreatedBy       *uuid.UUID  `json:"created_by,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (e *Event) Sanitize() {
	e.Title = strings.TrimSpace(e.Title)
	e.Description = strings.TrimSpace(e.Description)
	e.Location = strings.TrimSpace(e.Location)
	e.EventType = strings.ToLower(strings.TrimSpace(e.EventType))
	if e.EventType == "" {
		e.EventType = "club"
	}
	if e.Status == "" {
		e.Status = EventApproved
	}
}

func (e *Event) Overlaps(start, end time.Time) bool {
	return e.StartDate.Before(end) && start.Before(e.EndDate)
}

// EventFromRequest copies the descriptive fields of a finally approved request.
func EventFromRequest(r *EventRequest, approvedBy uuid.UUID, now time.Time) *Event {
	reqID := r.ID
	ev := &Event{
		ID:              uuid.New(),
		Title:           r.Title,
		Description:     r.Description,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		Location:        r.Location,
		MaxParticipants: r.MaxParticipants,
		IsPrivate:       r.IsPrivate,
		EventType:       "booking",
		Status:          EventApproved,
		SourceRequestID: &reqID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if approvedBy != uuid.Nil {
		ev.CreatedBy = &approvedBy
	}
	return ev
}

type CalendarEntryKind string

const (
	EntryEvent              CalendarEntryKind = "event"
	EntryTemporarilyBlocked CalendarEntryKind = "temporarily_blocked"
)

// CalendarEntry is one slot rendered by the booking calendar.
type CalendarEntry struct {
	Kind      CalendarEntryKind `json:"kind"`
	ID        uuid.UUID         `json:"id"`
	Title     string            `json:"title"`
	StartDate time.Time         `json:"start_date"`
	EndDate   time.Time         `json:"end_date"`
	Location  string            `json:"location,omitempty"`
	EventType string            `json:"event_type,omitempty"`
	IsPrivate bool              `json:"is_private"`
	Stage     RequestStage      `json:"stage,omitempty"`
}

// EventPatch is a partial admin update; nil fields are left alone.
type EventPatch struct {
	Title           *string      `json:"title"`
	Description     *string      `json:"description"`
	StartDate       *time.Time   `json:"start_date"`
	EndDate         *time.Time   `json:"end_date"`
	Location        *string      `json:"location"`
	MaxParticipants *int         `json:"max_participants"`
	IsPrivate       *bool        `json:"is_private"`
	EventType       *string      `json:"event_type"`
	Status          *EventStatus `json:"status"`
}

// Apply copies the set fields onto ev and returns the column map for the update.
func (p EventPatch) Apply(ev *Event) map[string]interface{} {
	fields := make(map[string]interface{})
	if p.Title != nil {
		ev.Title = strings.TrimSpace(*p.Title)
		fields["title"] = ev.Title
	}
	if p.Description != nil {
		ev.Description = strings.TrimSpace(*p.Description)
		fields["description"] = ev.Description
	}
	if p.StartDate != nil {
		ev.StartDate = *p.StartDate
		fields["start_date"] = ev.StartDate
	}
	if p.EndDate != nil {
		ev.EndDate = *p.EndDate
		fields["end_date"] = ev.EndDate
	}
	if p.Location != nil {
		ev.Location = strings.TrimSpace(*p.Location)
		fields["location"] = ev.Location
	}
	if p.MaxParticipants != nil {
		ev.MaxParticipants = *p.MaxParticipants
		fields["max_participants"] = ev.MaxParticipants
	}
	if p.IsPrivate != nil {
		ev.IsPrivate = *p.IsPrivate
		fields["is_private"] = ev.IsPrivate
	}
	if p.EventType != nil {
		ev.EventType = strings.ToLower(strings.TrimSpace(*p.EventType))
		fields["event_type"] = ev.EventType
	}
	if p.Status != nil {
		ev.Status = *p.Status
		fields["status"] = ev.Status
	}
	return fields
}
