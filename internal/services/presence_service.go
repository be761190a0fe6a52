package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vereinsheim/portal/internal/models"
)

const presenceCacheKey = "presence:status"

// FunctionInvoker calls a backend edge function and returns its raw body.
type FunctionInvoker interface {
	Invoke(functionName string, payload interface{}) (string, error)
}

// PresenceStatus tells whether someone is currently in the club house.
type PresenceStatus struct {
	Success    bool      `json:"success"`
	IsOccupied bool      `json:"is_occupied"`
	Message    string    `json:"message,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
	Cached     bool      `json:"cached"`
}

type PresenceService struct {
	functions FunctionInvoker
	name      string
	cache     models.Cache
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewPresenceService caches results for ttl when cache is non-nil.
func NewPresenceService(functions FunctionInvoker, name string, cache models.Cache, ttl time.Duration, logger *slog.Logger) *PresenceService {
	if name == "" {
		name = "check-presence"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceService{
		functions: functions,
		name:      name,
		cache:     cache,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

func (ps *PresenceService) Status(ctx context.Context) (*PresenceStatus, error) {
	if ps.cache != nil {
		raw, err := ps.cache.Get(ctx, presenceCacheKey)
		switch {
		case err == nil:
			var status PresenceStatus
			if jsonErr := json.Unmarshal([]byte(raw), &status); jsonErr == nil {
				status.Cached = true
				return &status, nil
			}
		case !errors.Is(err, models.ErrCacheMiss):
			ps.logger.Warn("presence cache read failed", "error", err)
		}
	}

	body, err := ps.invoke(ctx)
	if err != nil {
		return nil, err
	}

	var status PresenceStatus
	if err := json.Unmarshal([]byte(body), &status); err != nil {
		return nil, fmt.Errorf("unexpected presence function reply: %w", err)
	}
	status.CheckedAt = ps.now()

	if ps.cache != nil && status.Success {
		encoded, _ := json.Marshal(status)
		if err := ps.cache.Set(ctx, presenceCacheKey, string(encoded), ps.ttl); err != nil {
			ps.logger.Warn("presence cache write failed", "error", err)
		}
	}
	return &status, nil
}

func (ps *PresenceService) invoke(ctx context.Context) (string, error) {
	type reply struct {
		body string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		body, err := ps.functions.Invoke(ps.name, nil)
		done <- reply{body, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("presence function %s failed: %w", ps.name, r.err)
		}
		return r.body, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
