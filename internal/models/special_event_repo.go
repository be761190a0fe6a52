package models

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"
)

type SpecialEventsRepo interface {
	ListSpecialEvents(ctx context.Context, activeOnly bool) ([]*SpecialEvent, error)
	GetSpecialEvent(ctx context.Context, id uuid.UUID) (*SpecialEvent, error)
	GetSpecialEventBySlug(ctx context.Context, slug string) (*SpecialEvent, error)
	CreateSpecialEvent(ctx context.Context, se *SpecialEvent) (*SpecialEvent, error)
	UpdateSpecialEvent(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*SpecialEvent, error)

	CreateEntry(ctx context.Context, entry *Entry) (*Entry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error)
	ListEntries(ctx context.Context, specialEventID uuid.UUID, status EntryStatus) ([]*Entry, error)
	UpdateEntryStatus(ctx context.Context, id uuid.UUID, status EntryStatus) (*Entry, error)
}

// VotesRepo relies on the (special_event_id, voter_token) unique constraint:
// an upsert moves an existing vote instead of adding a second one.
type VotesRepo interface {
	UpsertVote(ctx context.Context, vote *Vote) (*Vote, error)
	DeleteVote(ctx context.Context, specialEventID uuid.UUID, voterToken string) error
	GetVote(ctx context.Context, specialEventID uuid.UUID, voterToken string) (*Vote, error)
	CountVotes(ctx context.Context, specialEventID uuid.UUID) (map[uuid.UUID]int, error)
}

const voteConflictColumns = "special_event_id,voter_token"

func (su *SupabaseRepo) ListSpecialEvents(ctx context.Context, activeOnly bool) ([]*SpecialEvent, error) {
	q := su.supabaseClient.From(SpecialEventsTable).Select("*", "", false)
	if activeOnly {
		q = q.Eq("is_active", "true")
	}
	raw, _, err := execute(ctx, q.Order("created_at", descending()).Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to list special events: %w", err)
	}
	return decodeRows[*SpecialEvent](raw)
}

func (su *SupabaseRepo) GetSpecialEvent(ctx context.Context, id uuid.UUID) (*SpecialEvent, error) {
	raw, _, err := execute(ctx, su.supabaseClient.From(SpecialEventsTable).
		Select("*", "", false).
		Eq("id", id.String()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to get special event: %w", err)
	}
	return firstRow[SpecialEvent](raw)
}

func (su *SupabaseRepo) GetSpecialEventBySlug(ctx context.Context, slug string) (*SpecialEvent, error) {
	raw, _, err := execute(ctx, su.supabaseClient.From(SpecialEventsTable).
		Select("*", "", false).
		Eq("slug", slug).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to get special event by slug: %w", err)
	}
	return firstRow[SpecialEvent](raw)
}

func (su *SupabaseRepo) CreateSpecialEvent(ctx context.Context, se *SpecialEvent) (*SpecialEvent, error) {
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}
	raw, _, err := execute(ctx, client.From(SpecialEventsTable).
		Insert(se, false, "", "representation", "").
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to insert special event: %w", err)
	}
	return firstRow[SpecialEvent](raw)
}

func (su *SupabaseRepo) UpdateSpecialEvent(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*SpecialEvent, error) {
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}
	raw, _, err := execute(ctx, client.From(SpecialEventsTable).
		Update(fields, "representation", "").
		Eq("id", id.String()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to update special event: %w", err)
	}
	return firstRow[SpecialEvent](raw)
}

func (su *SupabaseRepo) CreateEntry(ctx context.Context, entry *Entry) (*Entry, error) {
	raw, _, err := execute(ctx, su.supabaseClient.From(EntriesTable).
		Insert(entry, false, "", "representation", "").
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to insert entry: %w", err)
	}
	return firstRow[Entry](raw)
}

func (su *SupabaseRepo) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	raw, _, err := execute(ctx, su.supabaseClient.From(EntriesTable).
		Select("*", "", false).
		Eq("id", id.String()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return firstRow[Entry](raw)
}

// ListEntries returns the contest's entries; an empty status lists all of them.
func (su *SupabaseRepo) ListEntries(ctx context.Context, specialEventID uuid.UUID, status EntryStatus) ([]*Entry, error) {
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}
	q := client.From(EntriesTable).
		Select("*", "", false).
		Eq("special_event_id", specialEventID.String())
	if status != "" {
		q = q.Eq("status", string(status))
	}
	raw, _, err := execute(ctx, q.Order("created_at", ascending()).Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return decodeRows[*Entry](raw)
}

func (su *SupabaseRepo) UpdateEntryStatus(ctx context.Context, id uuid.UUID, status EntryStatus) (*Entry, error) {
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}
	raw, _, err := execute(ctx, client.From(EntriesTable).
		Update(map[string]interface{}{"status": status}, "representation", "").
		Eq("id", id.String()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to update entry status: %w", err)
	}
	return firstRow[Entry](raw)
}

func (su *SupabaseRepo) UpsertVote(ctx context.Context, vote *Vote) (*Vote, error) {
	row := map[string]interface{}{
		"special_event_id": vote.SpecialEventID,
		"entry_id":         vote.EntryID,
		"voter_token":      vote.VoterToken,
		"created_at":       vote.CreatedAt,
	}
	raw, _, err := execute(ctx, su.supabaseClient.From(VotesTable).
		Upsert(row, voteConflictColumns, "representation", "").
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert vote: %w", err)
	}
	return firstRow[Vote](raw)
}

func (su *SupabaseRepo) DeleteVote(ctx context.Context, specialEventID uuid.UUID, voterToken string) error {
	_, _, err := execute(ctx, su.supabaseClient.From(VotesTable).
		Delete("minimal", "").
		Eq("special_event_id", specialEventID.String()).
		Eq("voter_token", voterToken).
		Execute)
	if err != nil {
		return fmt.Errorf("failed to delete vote: %w", err)
	}
	return nil
}

func (su *SupabaseRepo) GetVote(ctx context.Context, specialEventID uuid.UUID, voterToken string) (*Vote, error) {
	raw, _, err := execute(ctx, su.supabaseClient.From(VotesTable).
		Select("*", "", false).
		Eq("special_event_id", specialEventID.String()).
		Eq("voter_token", voterToken).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	return firstRow[Vote](raw)
}

func (su *SupabaseRepo) CountVotes(ctx context.Context, specialEventID uuid.UUID) (map[uuid.UUID]int, error) {
	raw, _, err := execute(ctx, su.supabaseClient.From(VotesTable).
		Select("entry_id", "", false).
		Eq("special_event_id", specialEventID.String()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	rows, err := decodeRows[struct {
		EntryID uuid.UUID `json:"entry_id"`
	}](raw)
	if err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int)
	for _, r := range rows {
		counts[r.EntryID]++
	}
	return counts, nil
}

// UploadContestImage stores an entry image in the contest bucket and returns its public URL.
func (su *SupabaseRepo) UploadContestImage(ctx context.Context, specialEventID uuid.UUID, name, contentType string, data []byte) (string, error) {
	objectPath := path.Join(specialEventID.String(), uuid.NewString()+"-"+path.Base(name))
	upsert := false
	_, err := withContext(ctx, func() (storage_go.FileUploadResponse, error) {
		return su.supabaseClient.Storage.UploadFile(su.contestBucket, objectPath, bytes.NewReader(data), storage_go.FileOptions{
			ContentType: &contentType,
			Upsert:      &upsert,
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload contest image: %w", err)
	}
	return su.supabaseClient.Storage.GetPublicUrl(su.contestBucket, objectPath).SignedURL, nil
}
