package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
)

const (
	ProfileTable       = "profiles"
	EventsTable        = "events"
	EventRequestsTable = "event_requests"
	SpecialEventsTable = "special_events"
	EntriesTable       = "special_event_entries"
	VotesTable         = "special_event_votes"
)

// Supabase returns an array even for single results
func decodeRows[T any](raw []byte) ([]T, error) {
	var rows []T
	if len(raw) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rows: %w", err)
	}
	return rows, nil
}

func firstRow[T any](raw []byte) (*T, error) {
	rows, err := decodeRows[T](raw)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func ascending() *postgrest.OrderOpts {
	return &postgrest.OrderOpts{Ascending: true}
}

func descending() *postgrest.OrderOpts {
	return &postgrest.OrderOpts{Ascending: false}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// quoteFilterValue quotes a value for use inside a PostgREST or=() filter.
func quoteFilterValue(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}

func stageStrings(stages []RequestStage) []string {
	out := make([]string, 0, len(stages))
	for _, s := range stages {
		out = append(out, string(s))
	}
	return out
}
