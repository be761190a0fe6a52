package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/policy"
)

const (
	PrivateEventTitle = "Private Veranstaltung"
	BlockedSlotTitle  = "Vorübergehend blockiert"

	// maxCalendarWindow keeps a single calendar query to roughly a year.
	maxCalendarWindow = 366 * 24 * time.Hour
)

type EventService struct {
	events   models.EventsRepo
	requests models.EventRequestRepo
	policy   *policy.Policy
	logger   *slog.Logger
	now      func() time.Time
}

func NewEventService(events models.EventsRepo, requests models.EventRequestRepo, pol *policy.Policy, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{
		events:   events,
		requests: requests,
		policy:   pol,
		logger:   logger,
		now:      time.Now,
	}
}

func (es *EventService) authorize(actor policy.Principal, act policy.Action) error {
	d := es.policy.CanAccess(actor, policy.Events, act)
	if !d.Allowed {
		return fmt.Errorf("%w: %s", models.ErrForbidden, d.Reason)
	}
	return nil
}

func validateEvent(ev *models.Event) error {
	if err := models.Validate.Struct(ev); err != nil {
		return models.NewValidationError("", "Bitte prüfen Sie die Angaben zur Veranstaltung.")
	}
	if !ev.EndDate.After(ev.StartDate) {
		return models.NewValidationError("end_date", "Das Enddatum muss nach dem Startdatum liegen")
	}
	return nil
}

func (es *EventService) CreateEvent(ctx context.Context, actor policy.Principal, ev *models.Event) (*models.Event, error) {
	if err := es.authorize(actor, policy.Create); err != nil {
		return nil, err
	}
	ev.Sanitize()
	if err := validateEvent(ev); err != nil {
		return nil, err
	}

	now := es.now()
	ev.ID = uuid.New()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	if actor.Authenticated() {
		uid := actor.UserID
		ev.CreatedBy = &uid
	}
	return es.events.CreateEvent(ctx, ev)
}

func (es *EventService) UpdateEvent(ctx context.Context, actor policy.Principal, id uuid.UUID, patch models.EventPatch) (*models.Event, error) {
	if err := es.authorize(actor, policy.Update); err != nil {
		return nil, err
	}
	ev, err := es.events.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := patch.Apply(ev)
	if len(fields) == 0 {
		return nil, models.NewValidationError("", "Es wurden keine Änderungen übermittelt.")
	}
	if err := validateEvent(ev); err != nil {
		return nil, err
	}
	fields["updated_at"] = es.now()
	return es.events.UpdateEvent(ctx, id, fields)
}

func (es *EventService) DeleteEvent(ctx context.Context, actor policy.Principal, id uuid.UUID) error {
	if err := es.authorize(actor, policy.Delete); err != nil {
		return err
	}
	return es.events.DeleteEvent(ctx, id)
}

func (es *EventService) GetEvent(ctx context.Context, id uuid.UUID, viewer policy.Principal) (*models.Event, error) {
	ev, err := es.events.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if es.policy.IsAdmin(viewer) {
		return ev, nil
	}
	if ev.Status != models.EventApproved {
		return nil, models.ErrNotFound
	}
	if ev.IsPrivate {
		return maskEvent(ev), nil
	}
	return ev, nil
}

// ListEvents returns the approved public events of a window; admins also get
// private and pending ones.
func (es *EventService) ListEvents(ctx context.Context, from, to time.Time, viewer policy.Principal) ([]*models.Event, error) {
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	admin := es.policy.IsAdmin(viewer)
	events, err := es.events.ListEvents(ctx, from, to, admin)
	if err != nil {
		return nil, err
	}
	if admin {
		return events, nil
	}
	out := make([]*models.Event, 0, len(events))
	for _, ev := range events {
		if ev.Status == models.EventApproved && !ev.IsPrivate {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Calendar merges approved events and the windows of requests that are
// accepted but not yet confirmed. Private events keep their slot but lose
// their details for everyone except admins.
func (es *EventService) Calendar(ctx context.Context, from, to time.Time, viewer policy.Principal) ([]models.CalendarEntry, error) {
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	admin := es.policy.IsAdmin(viewer)

	events, err := es.events.ListEvents(ctx, from, to, true)
	if err != nil {
		return nil, err
	}
	blocking, err := es.requests.ListBlockingRequests(ctx, from, to)
	if err != nil {
		return nil, err
	}

	entries := make([]models.CalendarEntry, 0, len(events)+len(blocking))
	for _, ev := range events {
		if ev.Status != models.EventApproved {
			continue
		}
		entries = append(entries, eventEntry(ev, admin))
	}
	for _, req := range blocking {
		if !req.Stage.BlocksCalendar() {
			continue
		}
		entries = append(entries, blockEntry(req))
	}
	sortEntries(entries)
	return entries, nil
}

func checkWindow(from, to time.Time) error {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return models.NewValidationError("to", "Bitte geben Sie einen gültigen Zeitraum an.")
	}
	if to.Sub(from) > maxCalendarWindow {
		return models.NewValidationError("to", "Der Zeitraum darf höchstens ein Jahr umfassen.")
	}
	return nil
}

func maskEvent(ev *models.Event) *models.Event {
	return &models.Event{
		ID:        ev.ID,
		Title:     PrivateEventTitle,
		StartDate: ev.StartDate,
		EndDate:   ev.EndDate,
		IsPrivate: true,
		EventType: "private",
		Status:    ev.Status,
	}
}

func eventEntry(ev *models.Event, showPrivate bool) models.CalendarEntry {
	entry := models.CalendarEntry{
		Kind:      models.EntryEvent,
		ID:        ev.ID,
		Title:     ev.Title,
		StartDate: ev.StartDate,
		EndDate:   ev.EndDate,
		Location:  ev.Location,
		EventType: ev.EventType,
		IsPrivate: ev.IsPrivate,
	}
	if ev.IsPrivate && !showPrivate {
		entry.Title = PrivateEventTitle
		entry.Location = ""
		entry.EventType = "private"
	}
	return entry
}

func blockEntry(req *models.EventRequest) models.CalendarEntry {
	return models.CalendarEntry{
		Kind:      models.EntryTemporarilyBlocked,
		ID:        req.ID,
		Title:     BlockedSlotTitle,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		IsPrivate: req.IsPrivate,
		Stage:     req.Stage,
	}
}

func sortEntries(entries []models.CalendarEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].StartDate.Equal(entries[j].StartDate) {
			return entries[i].EndDate.Before(entries[j].EndDate)
		}
		return entries[i].StartDate.Before(entries[j].StartDate)
	})
}
