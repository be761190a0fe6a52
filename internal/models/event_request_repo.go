package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// requestColumns leaves out the inline contract payload, which can be several MB.
const requestColumns = "id,user_id,title,requester_name,requester_email,requester_phone,description," +
	"start_date,end_date,location,max_participants,is_private,stage,admin_notes,rejection_reason,event_id," +
	"key_handover_at,key_return_at,contract_file_name,contract_file_size,contract_mime_type,contract_file_url," +
	"house_rules_accepted,lease_accepted,terms_accepted,youth_protection_accepted," +
	"created_at,updated_at,reviewed_at,details_submitted_at,cancelled_at"

type EventRequestRepo interface {
	CreateRequest(ctx context.Context, req *EventRequest) (*EventRequest, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*EventRequest, error)
	GetContractData(ctx context.Context, id uuid.UUID) (string, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]*EventRequest, int, error)
	ListRequestsByOwner(ctx context.Context, userID uuid.UUID, email string) ([]*EventRequest, error)
	ListBlockingRequests(ctx context.Context, from, to time.Time) ([]*EventRequest, error)
	// UpdateRequestStage applies fields only if the row is still in the expected
	// stage and returns ErrConflict otherwise.
	UpdateRequestStage(ctx context.Context, id uuid.UUID, expected RequestStage, fields map[string]interface{}) (*EventRequest, error)
	UpdateRequestFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*EventRequest, error)
}

func (su *SupabaseRepo) CreateRequest(ctx context.Context, req *EventRequest) (*EventRequest, error) {
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	raw, _, err := execute(ctx, client.From(EventRequestsTable).
		Insert(req, false, "", "representation", "").
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event request: %w", err)
	}

	created, err := firstRow[EventRequest](raw)
	if err != nil {
		return nil, fmt.Errorf("no event request returned after insert: %w", err)
	}
	return created, nil
}

func (su *SupabaseRepo) GetRequest(ctx context.Context, id uuid.UUID) (*EventRequest, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("invalid UUID")
	}
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	raw, _, err := execute(ctx, client.From(EventRequestsTable).
		Select(requestColumns, "", false).
		Eq("id", id.String()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to get event request: %w", err)
	}
	return firstRow[EventRequest](raw)
}

func (su *SupabaseRepo) GetContractData(ctx context.Context, id uuid.UUID) (string, error) {
	client, err := su.clientFor(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create authenticated client: %w", err)
	}

	raw, _, err := execute(ctx, client.From(EventRequestsTable).
		Select("contract_file_data", "", false).
		Eq("id", id.String()).
		Execute)
	if err != nil {
		return "", fmt.Errorf("failed to get contract data: %w", err)
	}

	row, err := firstRow[struct {
		Data string `json:"contract_file_data"`
	}](raw)
	if err != nil {
		return "", err
	}
	return row.Data, nil
}

func (su *SupabaseRepo) ListRequests(ctx context.Context, filter RequestFilter) ([]*EventRequest, int, error) {
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	q := client.From(EventRequestsTable).Select(requestColumns, "exact", false)
	if len(filter.Stages) > 0 {
		q = q.In("stage", stageStrings(filter.Stages))
	}
	if filter.From != nil {
		q = q.Gte("end_date", timestamp(*filter.From))
	}
	if filter.To != nil {
		q = q.Lte("start_date", timestamp(*filter.To))
	}
	q = q.Order("created_at", descending())
	if filter.Limit > 0 {
		q = q.Range(filter.Offset, filter.Offset+filter.Limit-1, "")
	}

	raw, count, err := execute(ctx, q.Execute)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list event requests: %w", err)
	}
	rows, err := decodeRows[*EventRequest](raw)
	if err != nil {
		return nil, 0, err
	}
	return rows, int(count), nil
}

func (su *SupabaseRepo) ListRequestsByOwner(ctx context.Context, userID uuid.UUID, email string) ([]*EventRequest, error) {
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	var filter string
	switch {
	case userID != uuid.Nil && email != "":
		filter = fmt.Sprintf("user_id.eq.%s,requester_email.eq.%s", userID, quoteFilterValue(email))
	case userID != uuid.Nil:
		filter = fmt.Sprintf("user_id.eq.%s", userID)
	case email != "":
		filter = fmt.Sprintf("requester_email.eq.%s", quoteFilterValue(email))
	default:
		return nil, fmt.Errorf("owner id or email is required")
	}

	raw, _, err := execute(ctx, client.From(EventRequestsTable).
		Select(requestColumns, "", false).
		Or(filter, "").
		Order("created_at", descending()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to list own event requests: %w", err)
	}
	return decodeRows[*EventRequest](raw)
}

func (su *SupabaseRepo) ListBlockingRequests(ctx context.Context, from, to time.Time) ([]*EventRequest, error) {
	raw, _, err := execute(ctx, su.supabaseClient.From(EventRequestsTable).
		Select("id,title,start_date,end_date,location,is_private,stage", "", false).
		In("stage", []string{string(StageInitialAccepted), string(StageDetailsSubmitted)}).
		Lt("start_date", timestamp(to)).
		Gt("end_date", timestamp(from)).
		Order("start_date", ascending()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocking requests: %w", err)
	}
	return decodeRows[*EventRequest](raw)
}

func (su *SupabaseRepo) UpdateRequestStage(ctx context.Context, id uuid.UUID, expected RequestStage, fields map[string]interface{}) (*EventRequest, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("invalid UUID")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	raw, _, err := execute(ctx, client.From(EventRequestsTable).
		Update(fields, "representation", "").
		Eq("id", id.String()).
		Eq("stage", string(expected)).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to update event request: %w", err)
	}

	updated, err := firstRow[EventRequest](raw)
	if err == ErrNotFound {
		return nil, ErrConflict
	}
	return updated, err
}

func (su *SupabaseRepo) UpdateRequestFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*EventRequest, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	raw, _, err := execute(ctx, client.From(EventRequestsTable).
		Update(fields, "representation", "").
		Eq("id", id.String()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to update event request: %w", err)
	}
	return firstRow[EventRequest](raw)
}
