package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/notify"
	"github.com/vereinsheim/portal/internal/policy"
)

// Dispatcher queues a notification without waiting for delivery.
type Dispatcher interface {
	Dispatch(template string, to []string, data notify.Data)
}

const (
	defaultPageSize = 50
	maxPageSize     = 200

	// bound for cleanup work that must run after the request deadline passed
	compensateTimeout = 10 * time.Second
)

type RequestService struct {
	requests  models.EventRequestRepo
	events    models.EventsRepo
	contracts models.ContractStore
	activity  models.ActivityRepo
	notifier  Dispatcher
	policy    *policy.Policy
	logger    *slog.Logger
	now       func() time.Time
}

func NewRequestService(
	requests models.EventRequestRepo,
	events models.EventsRepo,
	contracts models.ContractStore,
	activity models.ActivityRepo,
	notifier Dispatcher,
	pol *policy.Policy,
	logger *slog.Logger,
) *RequestService {
	if activity == nil {
		activity = models.NoopActivityRepo{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestService{
		requests:  requests,
		events:    events,
		contracts: contracts,
		activity:  activity,
		notifier:  notifier,
		policy:    pol,
		logger:    logger,
		now:       time.Now,
	}
}

func (rs *RequestService) authorize(actor policy.Principal, act policy.Action, req *models.EventRequest) error {
	var target *policy.Target
	if req != nil {
		target = &policy.Target{OwnerID: req.UserID, OwnerEmail: req.RequesterEmail}
	}
	d := rs.policy.CanAccessRecord(actor, policy.EventRequests, act, target)
	if !d.Allowed {
		return fmt.Errorf("%w: %s", models.ErrForbidden, d.Reason)
	}
	return nil
}

// Submit records a new request. Whatever the caller sends, it starts in the initial stage.
func (rs *RequestService) Submit(ctx context.Context, in models.RequestSubmission, applicant policy.Principal) (*models.EventRequest, error) {
	in.Sanitize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := rs.now()
	req := &models.EventRequest{
		ID:              uuid.New(),
		Title:           in.Title,
		RequesterName:   in.RequesterName,
		RequesterEmail:  in.RequesterEmail,
		RequesterPhone:  in.RequesterPhone,
		Description:     in.Description,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		Location:        in.Location,
		MaxParticipants: in.MaxParticipants,
		IsPrivate:       in.IsPrivate,
		Stage:           models.StageInitial,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if applicant.Authenticated() {
		uid := applicant.UserID
		req.UserID = &uid
	}

	created, err := rs.requests.CreateRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit event request: %w", err)
	}

	rs.record(ctx, created, "submitted", "", models.StageInitial, applicant, "")
	rs.notify(notify.TemplateRequestReceived, nil, notify.Data{Request: created, Path: adminPath(created.ID)})
	return created, nil
}

func (rs *RequestService) Accept(ctx context.Context, id uuid.UUID, admin policy.Principal, notes string) (*models.EventRequest, error) {
	if err := rs.authorize(admin, policy.Review, nil); err != nil {
		return nil, err
	}
	req, err := rs.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := models.CheckTransition(req.Stage, models.StageInitialAccepted); err != nil {
		return nil, err
	}

	now := rs.now()
	fields := map[string]interface{}{
		"stage":       models.StageInitialAccepted,
		"reviewed_at": now,
		"updated_at":  now,
	}
	notes = strings.TrimSpace(notes)
	if notes != "" {
		fields["admin_notes"] = notes
	}

	updated, err := rs.requests.UpdateRequestStage(ctx, id, req.Stage, fields)
	if err != nil {
		return nil, err
	}

	rs.record(ctx, updated, "accepted", req.Stage, updated.Stage, admin, notes)
	rs.notify(notify.TemplateRequestAccepted, []string{updated.RequesterEmail}, notify.Data{Request: updated, Notes: notes, Path: applicantPath(updated.ID)})
	return updated, nil
}

func (rs *RequestService) Reject(ctx context.Context, id uuid.UUID, admin policy.Principal, reason string) (*models.EventRequest, error) {
	if err := rs.authorize(admin, policy.Review, nil); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.NewValidationError("reason", "Bitte geben Sie einen Grund für die Ablehnung an.")
	}
	req, err := rs.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := models.CheckTransition(req.Stage, models.StageRejected); err != nil {
		return nil, err
	}

	now := rs.now()
	updated, err := rs.requests.UpdateRequestStage(ctx, id, req.Stage, map[string]interface{}{
		"stage":            models.StageRejected,
		"rejection_reason": reason,
		"reviewed_at":      now,
		"updated_at":       now,
	})
	if err != nil {
		return nil, err
	}

	rs.record(ctx, updated, "rejected", req.Stage, updated.Stage, admin, reason)
	rs.notify(notify.TemplateRequestRejected, []string{updated.RequesterEmail}, notify.Data{Request: updated, Reason: reason})
	return updated, nil
}

// SubmitDetails moves an initially accepted request forward with the key
// times and the signed contract. The inline copy of the contract is written
// together with the stage change; the object storage copy afterwards and
// only on a best effort basis.
func (rs *RequestService) SubmitDetails(ctx context.Context, id uuid.UUID, applicant policy.Principal, details models.DetailSubmission) (*models.EventRequest, models.FileStoreResult, error) {
	result := models.FileStoreResult{Primary: models.StoreFailed, Secondary: models.StoreSkipped}

	if err := details.Validate(); err != nil {
		return nil, result, err
	}

	req, err := rs.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, result, err
	}
	if err := rs.authorize(applicant, policy.SubmitDetails, req); err != nil {
		return nil, result, err
	}
	if err := models.CheckTransition(req.Stage, models.StageDetailsSubmitted); err != nil {
		return nil, result, err
	}
	if req.HasDetails() {
		return nil, result, &models.TransitionError{
			From:    req.Stage,
			To:      models.StageDetailsSubmitted,
			Message: "Die Details wurden bereits eingereicht oder die Anfrage wurde noch nicht angenommen.",
		}
	}

	file := details.File
	now := rs.now()
	fields := map[string]interface{}{
		"stage":                     models.StageDetailsSubmitted,
		"start_date":                details.StartDate,
		"end_date":                  details.EndDate,
		"key_handover_at":           details.KeyHandoverAt,
		"key_return_at":             details.KeyReturnAt,
		"house_rules_accepted":      details.HouseRulesAccepted,
		"lease_accepted":            details.LeaseAccepted,
		"terms_accepted":            details.TermsAccepted,
		"youth_protection_accepted": details.YouthProtectionAccepted,
		"contract_file_name":        file.Name,
		"contract_file_size":        int64(len(file.Data)),
		"contract_mime_type":        file.MimeType,
		"contract_file_data":        base64.StdEncoding.EncodeToString(file.Data),
		"details_submitted_at":      now,
		"updated_at":                now,
	}

	updated, err := rs.requests.UpdateRequestStage(ctx, id, models.StageInitialAccepted, fields)
	if err != nil {
		return nil, result, err
	}
	result.Primary = models.StoreStored

	if rs.contracts != nil {
		objectPath, err := rs.contracts.UploadContract(ctx, id, file)
		if err != nil {
			rs.logger.Warn("contract upload to storage failed, inline copy kept",
				"request_id", id,
				"error", err,
			)
			result.Secondary = models.StoreFailed
			result.Error = err.Error()
		} else {
			result.Secondary = models.StoreStored
			result.URL = objectPath
			if withURL, err := rs.requests.UpdateRequestFields(ctx, id, map[string]interface{}{"contract_file_url": objectPath}); err != nil {
				rs.logger.Warn("failed to store contract path",
					"request_id", id,
					"error", err,
				)
			} else {
				updated = withURL
			}
		}
	}
	updated.ContractFileData = ""

	rs.record(ctx, updated, "details_submitted", models.StageInitialAccepted, updated.Stage, applicant, file.Name)
	rs.notify(notify.TemplateDetailsReceived, nil, notify.Data{Request: updated, Path: adminPath(updated.ID)})
	return updated, result, nil
}

// FinalAccept confirms the booking and creates its calendar event. The event
// is written first and removed again if the request changed in the meantime.
func (rs *RequestService) FinalAccept(ctx context.Context, id uuid.UUID, admin policy.Principal, notes string) (*models.EventRequest, *models.Event, error) {
	if err := rs.authorize(admin, policy.Review, nil); err != nil {
		return nil, nil, err
	}
	req, err := rs.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := models.CheckTransition(req.Stage, models.StageFinalAccepted); err != nil {
		return nil, nil, err
	}

	now := rs.now()
	event, err := rs.events.CreateEvent(ctx, models.EventFromRequest(req, admin.UserID, now))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create event for request: %w", err)
	}

	fields := map[string]interface{}{
		"stage":       models.StageFinalAccepted,
		"event_id":    event.ID,
		"reviewed_at": now,
		"updated_at":  now,
	}
	notes = strings.TrimSpace(notes)
	if notes != "" {
		fields["admin_notes"] = notes
	}

	updated, err := rs.requests.UpdateRequestStage(ctx, id, req.Stage, fields)
	if err != nil {
		committed := rs.undoApprovalEvent(ctx, id, event.ID)
		if committed == nil {
			return nil, nil, err
		}
		updated = committed
	}

	rs.record(ctx, updated, "final_accepted", req.Stage, updated.Stage, admin, notes)
	rs.notify(notify.TemplateRequestApproved, []string{updated.RequesterEmail}, notify.Data{Request: updated, Notes: notes, Path: applicantPath(updated.ID)})
	return updated, event, nil
}

// undoApprovalEvent removes the event of a failed approval. The caller's
// context may already be done, so the cleanup runs on its own deadline. When
// the stage update did land, the request is returned and the event stays.
func (rs *RequestService) undoApprovalEvent(ctx context.Context, id, eventID uuid.UUID) *models.EventRequest {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	current, err := rs.requests.GetRequest(cleanupCtx, id)
	if err != nil {
		rs.logger.Error("cannot verify request after aborted approval, event kept",
			"request_id", id,
			"event_id", eventID,
			"error", err,
		)
		return nil
	}
	if current.Stage == models.StageFinalAccepted && current.EventID != nil && *current.EventID == eventID {
		rs.logger.Warn("approval landed despite update error", "request_id", id, "event_id", eventID)
		return current
	}
	if err := rs.events.DeleteEvent(cleanupCtx, eventID); err != nil {
		rs.logger.Error("failed to remove event after aborted approval",
			"request_id", id,
			"event_id", eventID,
			"error", err,
		)
	}
	return nil
}

func (rs *RequestService) Cancel(ctx context.Context, id uuid.UUID, actor policy.Principal) (*models.EventRequest, error) {
	req, err := rs.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rs.authorize(actor, policy.Cancel, req); err != nil {
		return nil, err
	}
	if err := models.CheckTransition(req.Stage, models.StageCancelled); err != nil {
		return nil, err
	}

	now := rs.now()
	updated, err := rs.requests.UpdateRequestStage(ctx, id, req.Stage, map[string]interface{}{
		"stage":        models.StageCancelled,
		"cancelled_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return nil, err
	}

	rs.record(ctx, updated, "cancelled", req.Stage, updated.Stage, actor, "")
	rs.notify(notify.TemplateRequestCancelled, nil, notify.Data{Request: updated, Path: adminPath(updated.ID)})
	return updated, nil
}

// UpdateNotes changes the internal admin notes of a request that is still open.
func (rs *RequestService) UpdateNotes(ctx context.Context, id uuid.UUID, admin policy.Principal, notes string) (*models.EventRequest, error) {
	if err := rs.authorize(admin, policy.Update, nil); err != nil {
		return nil, err
	}
	req, err := rs.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Stage.IsTerminal() {
		return nil, &models.TransitionError{
			From:    req.Stage,
			To:      req.Stage,
			Message: "Abgeschlossene Anfragen können nicht mehr geändert werden.",
		}
	}

	notes = strings.TrimSpace(notes)
	updated, err := rs.requests.UpdateRequestStage(ctx, id, req.Stage, map[string]interface{}{
		"admin_notes": notes,
		"updated_at":  rs.now(),
	})
	if err != nil {
		return nil, err
	}
	rs.record(ctx, updated, "notes_updated", "", "", admin, notes)
	return updated, nil
}

func (rs *RequestService) Get(ctx context.Context, id uuid.UUID, viewer policy.Principal) (*models.EventRequest, error) {
	req, err := rs.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rs.authorize(viewer, policy.Read, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (rs *RequestService) ListAll(ctx context.Context, admin policy.Principal, filter models.RequestFilter) ([]*models.EventRequest, int, error) {
	if err := rs.authorize(admin, policy.Review, nil); err != nil {
		return nil, 0, err
	}
	for _, s := range filter.Stages {
		if !s.Valid() {
			return nil, 0, models.NewValidationError("stage", "Unbekannter Status: "+string(s))
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return rs.requests.ListRequests(ctx, filter)
}

func (rs *RequestService) ListMine(ctx context.Context, applicant policy.Principal) ([]*models.EventRequest, error) {
	if !applicant.Authenticated() {
		return nil, fmt.Errorf("%w: Bitte melden Sie sich an.", models.ErrForbidden)
	}
	return rs.requests.ListRequestsByOwner(ctx, applicant.UserID, applicant.Email)
}

// Conflicts lists what else occupies the request's window. It is advisory;
// overlapping bookings are left to the admin's judgement.
func (rs *RequestService) Conflicts(ctx context.Context, id uuid.UUID, admin policy.Principal) ([]models.CalendarEntry, error) {
	if err := rs.authorize(admin, policy.Review, nil); err != nil {
		return nil, err
	}
	req, err := rs.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	events, err := rs.events.ListEvents(ctx, req.StartDate, req.EndDate, true)
	if err != nil {
		return nil, err
	}
	blocking, err := rs.requests.ListBlockingRequests(ctx, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	conflicts := make([]models.CalendarEntry, 0, len(events)+len(blocking))
	for _, ev := range events {
		if ev.SourceRequestID != nil && *ev.SourceRequestID == req.ID {
			continue
		}
		if ev.Status != models.EventApproved || !ev.Overlaps(req.StartDate, req.EndDate) {
			continue
		}
		conflicts = append(conflicts, eventEntry(ev, true))
	}
	for _, other := range blocking {
		if other.ID == req.ID || !other.Overlaps(req.StartDate, req.EndDate) {
			continue
		}
		entry := blockEntry(other)
		entry.Title = other.Title
		conflicts = append(conflicts, entry)
	}
	sortEntries(conflicts)
	return conflicts, nil
}

// ContractFile prefers a signed storage link and falls back to the inline copy.
func (rs *RequestService) ContractFile(ctx context.Context, id uuid.UUID, viewer policy.Principal) (*models.ContractDownload, error) {
	req, err := rs.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rs.authorize(viewer, policy.Read, req); err != nil {
		return nil, err
	}
	if req.ContractFileName == "" {
		return nil, models.ErrNotFound
	}

	dl := &models.ContractDownload{Name: req.ContractFileName, MimeType: req.ContractMimeType}
	if dl.MimeType == "" {
		dl.MimeType = models.ContractMimeType
	}

	if req.ContractFileURL != "" && rs.contracts != nil {
		url, err := rs.contracts.ContractURL(ctx, req.ContractFileURL)
		if err == nil {
			dl.URL = url
			return dl, nil
		}
		rs.logger.Warn("failed to sign contract url, serving inline copy",
			"request_id", id,
			"error", err,
		)
	}

	encoded, err := rs.requests.GetContractData(ctx, id)
	if err != nil {
		return nil, err
	}
	if encoded == "" {
		return nil, models.ErrNotFound
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("stored contract is corrupt: %w", err)
	}
	dl.Data = data
	return dl, nil
}

func (rs *RequestService) Activity(ctx context.Context, id uuid.UUID, admin policy.Principal, limit int) ([]*models.RequestActivity, error) {
	if err := rs.authorize(admin, policy.Review, nil); err != nil {
		return nil, err
	}
	return rs.activity.ListActivity(ctx, id, limit)
}

// record never fails the workflow; the activity log is an audit aid.
func (rs *RequestService) record(ctx context.Context, req *models.EventRequest, action string, from, to models.RequestStage, actor policy.Principal, note string) {
	entry := &models.RequestActivity{
		RequestID:  req.ID.String(),
		Action:     action,
		FromStage:  from,
		ToStage:    to,
		ActorEmail: actor.Email,
		Note:       note,
		At:         rs.now(),
	}
	if actor.Authenticated() {
		entry.ActorID = actor.UserID.String()
	}
	if err := rs.activity.RecordActivity(ctx, entry); err != nil {
		rs.logger.Warn("failed to record request activity",
			"request_id", req.ID,
			"action", action,
			"error", err,
		)
	}
}

func (rs *RequestService) notify(template string, to []string, data notify.Data) {
	if rs.notifier == nil {
		return
	}
	rs.notifier.Dispatch(template, to, data)
}

func adminPath(id uuid.UUID) string {
	return "/admin/anfragen/" + id.String()
}

func applicantPath(id uuid.UUID) string {
	return "/anfragen/" + id.String()
}

// IsTransitionError reports whether err is an illegal lifecycle move.
func IsTransitionError(err error) bool {
	var te *models.TransitionError
	return errors.As(err, &te)
}
