package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventsRepo interface {
	CreateEvent(ctx context.Context, event *Event) (*Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)
	ListEvents(ctx context.Context, from, to time.Time, includePrivate bool) ([]*Event, error)
	UpdateEvent(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*Event, error)
	DeleteEvent(ctx context.Context, id uuid.UUID) error
}

func (su *SupabaseRepo) CreateEvent(ctx context.Context, event *Event) (*Event, error) {
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	raw, _, err := execute(ctx, client.From(EventsTable).
		Insert(event, false, "", "representation", "").
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	return firstRow[Event](raw)
}

func (su *SupabaseRepo) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	raw, _, err := execute(ctx, su.supabaseClient.From(EventsTable).
		Select("*", "", false).
		Eq("id", id.String()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return firstRow[Event](raw)
}

// ListEvents returns non-cancelled events overlapping [from, to).
func (su *SupabaseRepo) ListEvents(ctx context.Context, from, to time.Time, includePrivate bool) ([]*Event, error) {
	q := su.supabaseClient.From(EventsTable).
		Select("*", "", false).
		Neq("status", string(EventCancelled)).
		Lt("start_date", timestamp(to)).
		Gt("end_date", timestamp(from))
	if !includePrivate {
		q = q.Eq("is_private", "false")
	}

	raw, _, err := execute(ctx, q.Order("start_date", ascending()).Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return decodeRows[*Event](raw)
}

func (su *SupabaseRepo) UpdateEvent(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*Event, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	raw, _, err := execute(ctx, client.From(EventsTable).
		Update(fields, "representation", "").
		Eq("id", id.String()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return firstRow[Event](raw)
}

func (su *SupabaseRepo) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	client, err := su.clientFor(ctx)
	if err != nil {
		return fmt.Errorf("failed to create authenticated client: %w", err)
	}

	raw, _, err := execute(ctx, client.From(EventsTable).
		Delete("representation", "").
		Eq("id", id.String()).
		Execute)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if _, err := firstRow[Event](raw); err != nil {
		return err
	}
	return nil
}
