package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/notify"
	"github.com/vereinsheim/portal/internal/policy"
)

var errNoImageStore = errors.New("no image storage configured")

type ContestService struct {
	contests models.SpecialEventsRepo
	votes    models.VotesRepo
	images   *ImageService
	notifier Dispatcher
	policy   *policy.Policy
	logger   *slog.Logger
	now      func() time.Time
}

func NewContestService(
	contests models.SpecialEventsRepo,
	votes models.VotesRepo,
	images *ImageService,
	notifier Dispatcher,
	pol *policy.Policy,
	logger *slog.Logger,
) *ContestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContestService{
		contests: contests,
		votes:    votes,
		images:   images,
		notifier: notifier,
		policy:   pol,
		logger:   logger,
		now:      time.Now,
	}
}

func (cs *ContestService) authorize(actor policy.Principal, res policy.Resource, act policy.Action) error {
	d := cs.policy.CanAccess(actor, res, act)
	if !d.Allowed {
		return fmt.Errorf("%w: %s", models.ErrForbidden, d.Reason)
	}
	return nil
}

// List returns active contests; admins also see inactive ones.
func (cs *ContestService) List(ctx context.Context, viewer policy.Principal) ([]*models.SpecialEvent, error) {
	return cs.contests.ListSpecialEvents(ctx, !cs.policy.IsAdmin(viewer))
}

func (cs *ContestService) GetBySlug(ctx context.Context, slug string, viewer policy.Principal) (*models.SpecialEvent, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !models.ValidSlug(slug) {
		return nil, models.ErrNotFound
	}
	se, err := cs.contests.GetSpecialEventBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !se.IsActive && !cs.policy.IsAdmin(viewer) {
		return nil, models.ErrNotFound
	}
	return se, nil
}

func (cs *ContestService) Create(ctx context.Context, actor policy.Principal, se *models.SpecialEvent) (*models.SpecialEvent, error) {
	if err := cs.authorize(actor, policy.SpecialEvents, policy.Create); err != nil {
		return nil, err
	}
	se.Slug = strings.ToLower(strings.TrimSpace(se.Slug))
	se.Title = strings.TrimSpace(se.Title)
	se.Description = strings.TrimSpace(se.Description)
	if err := models.Validate.Struct(se); err != nil {
		return nil, models.NewValidationError("", "Bitte geben Sie Titel und Kurzname des Wettbewerbs an.")
	}
	if !models.ValidSlug(se.Slug) {
		return nil, models.NewValidationError("slug", "Der Kurzname darf nur Kleinbuchstaben, Ziffern und Bindestriche enthalten.")
	}

	now := cs.now()
	se.ID = uuid.New()
	se.CreatedAt = now
	se.UpdatedAt = now
	return cs.contests.CreateSpecialEvent(ctx, se)
}

func (cs *ContestService) Update(ctx context.Context, actor policy.Principal, id uuid.UUID, patch models.SpecialEventPatch) (*models.SpecialEvent, error) {
	if err := cs.authorize(actor, policy.SpecialEvents, policy.Update); err != nil {
		return nil, err
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil, models.NewValidationError("", "Es wurden keine Änderungen übermittelt.")
	}
	if t, ok := fields["title"].(string); ok && t == "" {
		return nil, models.NewValidationError("title", "Der Titel darf nicht leer sein.")
	}
	fields["updated_at"] = cs.now()
	return cs.contests.UpdateSpecialEvent(ctx, id, fields)
}

// SubmitEntry accepts a public photo upload. Entries wait for moderation.
func (cs *ContestService) SubmitEntry(ctx context.Context, slug string, in models.EntrySubmission) (*models.Entry, error) {
	in.Sanitize()
	if err := models.Validate.Struct(in); err != nil {
		return nil, models.NewValidationError("", "Bitte füllen Sie alle Pflichtfelder aus und geben Sie eine gültige E-Mail-Adresse an.")
	}

	se, err := cs.GetBySlug(ctx, slug, policy.Principal{})
	if err != nil {
		return nil, err
	}
	if !se.AcceptsEntries(cs.now()) {
		return nil, models.NewValidationError("", "Für diesen Wettbewerb können keine Beiträge mehr eingereicht werden.")
	}

	imageURL, err := cs.images.StoreEntryImage(ctx, se.ID, in.Image)
	if err != nil {
		return nil, err
	}

	now := cs.now()
	entry, err := cs.contests.CreateEntry(ctx, &models.Entry{
		ID:             uuid.New(),
		SpecialEventID: se.ID,
		Title:          in.Title,
		Description:    in.Description,
		ImageURL:       imageURL,
		SubmitterName:  in.SubmitterName,
		SubmitterEmail: in.SubmitterEmail,
		Status:         models.EntryPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save entry: %w", err)
	}

	if cs.notifier != nil {
		cs.notifier.Dispatch(notify.TemplateEntrySubmitted, nil, notify.Data{
			SpecialEvent: se,
			Entry:        entry,
			Path:         "/admin/wettbewerbe/" + se.Slug,
		})
	}
	return entry, nil
}

func (cs *ContestService) Moderate(ctx context.Context, actor policy.Principal, entryID uuid.UUID, status models.EntryStatus) (*models.Entry, error) {
	if err := cs.authorize(actor, policy.Entries, policy.Moderate); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, models.NewValidationError("status", "Unbekannter Status: "+string(status))
	}
	return cs.contests.UpdateEntryStatus(ctx, entryID, status)
}

// Entries lists the gallery with vote counts, most voted first. Admins may
// ask for another status or for all entries with an empty status.
func (cs *ContestService) Entries(ctx context.Context, slug string, viewer policy.Principal, status models.EntryStatus) ([]*models.EntryWithVotes, error) {
	se, err := cs.GetBySlug(ctx, slug, viewer)
	if err != nil {
		return nil, err
	}
	if !cs.policy.IsAdmin(viewer) {
		status = models.EntryApproved
	}

	entries, err := cs.contests.ListEntries(ctx, se.ID, status)
	if err != nil {
		return nil, err
	}
	counts, err := cs.votes.CountVotes(ctx, se.ID)
	if err != nil {
		return nil, err
	}

	out := make([]*models.EntryWithVotes, 0, len(entries))
	for _, e := range entries {
		out = append(out, &models.EntryWithVotes{Entry: *e, Votes: counts[e.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Votes > out[j].Votes
	})
	return out, nil
}

// CastVote records the token's vote. A token has at most one vote per
// contest, so voting again moves it to the new entry.
func (cs *ContestService) CastVote(ctx context.Context, slug string, entryID uuid.UUID, voterToken string) (*models.Vote, error) {
	if !models.ValidVoterToken(voterToken) {
		return nil, models.NewValidationError("voter_token", "Ungültiges Abstimmungs-Token.")
	}
	se, err := cs.GetBySlug(ctx, slug, policy.Principal{})
	if err != nil {
		return nil, err
	}
	if !se.AcceptsVotes(cs.now()) {
		return nil, models.NewValidationError("", "Die Abstimmung für diesen Wettbewerb ist geschlossen.")
	}

	entry, err := cs.contests.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.SpecialEventID != se.ID || entry.Status != models.EntryApproved {
		return nil, models.ErrNotFound
	}

	return cs.votes.UpsertVote(ctx, &models.Vote{
		SpecialEventID: se.ID,
		EntryID:        entry.ID,
		VoterToken:     voterToken,
		CreatedAt:      cs.now(),
	})
}

func (cs *ContestService) RevokeVote(ctx context.Context, slug, voterToken string) error {
	if !models.ValidVoterToken(voterToken) {
		return models.NewValidationError("voter_token", "Ungültiges Abstimmungs-Token.")
	}
	se, err := cs.GetBySlug(ctx, slug, policy.Principal{})
	if err != nil {
		return err
	}
	if !se.AcceptsVotes(cs.now()) {
		return models.NewValidationError("", "Die Abstimmung für diesen Wettbewerb ist geschlossen.")
	}
	return cs.votes.DeleteVote(ctx, se.ID, voterToken)
}

// MyVote returns nil without error when the token has not voted.
func (cs *ContestService) MyVote(ctx context.Context, slug, voterToken string) (*models.Vote, error) {
	if !models.ValidVoterToken(voterToken) {
		return nil, nil
	}
	se, err := cs.GetBySlug(ctx, slug, policy.Principal{})
	if err != nil {
		return nil, err
	}
	vote, err := cs.votes.GetVote(ctx, se.ID, voterToken)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return vote, err
}
