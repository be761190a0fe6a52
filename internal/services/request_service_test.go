package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/notify"
	"github.com/vereinsheim/portal/internal/policy"
)

type requestFixture struct {
	svc       *RequestService
	events    *EventService
	requests  *fakeRequestRepo
	eventRepo *fakeEventsRepo
	contracts *fakeContractStore
	activity  *fakeActivity
	notifier  *fakeDispatcher
}

func newRequestFixture() *requestFixture {
	f := &requestFixture{
		requests:  newFakeRequestRepo(),
		eventRepo: newFakeEventsRepo(),
		contracts: &fakeContractStore{},
		activity:  &fakeActivity{},
		notifier:  &fakeDispatcher{},
	}
	pol := policy.New("vorstand@example.com")
	f.svc = NewRequestService(f.requests, f.eventRepo, f.contracts, f.activity, f.notifier, pol, discardLogger())
	f.events = NewEventService(f.eventRepo, f.requests, pol, discardLogger())
	return f
}

var (
	eventStart = time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	eventEnd   = time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)
)

func validSubmission() models.RequestSubmission {
	return models.RequestSubmission{
		Title:           " Sommerfest ",
		RequesterName:   "Erika Muster",
		RequesterEmail:  "Erika@Example.com",
		Description:     "Grillen im Hof",
		StartDate:       eventStart,
		EndDate:         eventEnd,
		MaxParticipants: 40,
	}
}

func pdf(size int) *models.ContractFile {
	data := make([]byte, size)
	copy(data, "%PDF-1.7")
	return &models.ContractFile{Name: "vertrag.pdf", MimeType: models.ContractMimeType, Size: int64(size), Data: data}
}

func validDetails() models.DetailSubmission {
	return models.DetailSubmission{
		StartDate:          eventStart,
		EndDate:            eventEnd,
		KeyHandoverAt:      eventStart.Add(-2 * time.Hour),
		KeyReturnAt:        eventEnd.Add(12 * time.Hour),
		HouseRulesAccepted: true,
		LeaseAccepted:      true,
		File:               pdf(2048),
	}
}

func (f *requestFixture) seed(t *testing.T, stage models.RequestStage) *models.EventRequest {
	t.Helper()
	ownerID := testMemberID
	req := &models.EventRequest{
		ID:              uuid.New(),
		UserID:          &ownerID,
		Title:           "Sommerfest",
		RequesterName:   "Erika Muster",
		RequesterEmail:  "erika@example.com",
		Description:     "Grillen im Hof",
		StartDate:       eventStart,
		EndDate:         eventEnd,
		MaxParticipants: 40,
		Stage:           stage,
	}
	if stage == models.StageDetailsSubmitted {
		now := time.Now()
		req.DetailsSubmittedAt = &now
		req.ContractFileName = "vertrag.pdf"
	}
	f.requests.put(req)
	return req
}

func TestSubmitAlwaysStartsInitial(t *testing.T) {
	f := newRequestFixture()

	req, err := f.svc.Submit(context.Background(), validSubmission(), memberPrincipal())
	require.NoError(t, err)
	assert.Equal(t, models.StageInitial, req.Stage)
	assert.Equal(t, "Sommerfest", req.Title)
	assert.Equal(t, "erika@example.com", req.RequesterEmail)
	require.NotNil(t, req.UserID)
	assert.Equal(t, testMemberID, *req.UserID)
	assert.Equal(t, models.StageInitial, f.requests.stage(req.ID))

	assert.Equal(t, []string{notify.TemplateRequestReceived}, f.notifier.templates())
	assert.Empty(t, f.notifier.last().to)
}

func TestSubmitAsGuest(t *testing.T) {
	f := newRequestFixture()

	req, err := f.svc.Submit(context.Background(), validSubmission(), policy.Principal{})
	require.NoError(t, err)
	assert.Nil(t, req.UserID)
	assert.Equal(t, models.StageInitial, req.Stage)
}

func TestGuestRequestContinuesAfterSignup(t *testing.T) {
	f := newRequestFixture()
	ctx := context.Background()

	req, err := f.svc.Submit(ctx, validSubmission(), policy.Principal{})
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, req.ID, adminPrincipal(), "")
	require.NoError(t, err)

	stranger := policy.Principal{UserID: uuid.New(), Email: "max@example.com", Role: policy.RoleMember}
	_, _, err = f.svc.SubmitDetails(ctx, req.ID, stranger, validDetails())
	assert.ErrorIs(t, err, models.ErrForbidden)

	signedUp := policy.Principal{UserID: uuid.New(), Email: "erika@example.com", Role: policy.RoleMember}
	updated, _, err := f.svc.SubmitDetails(ctx, req.ID, signedUp, validDetails())
	require.NoError(t, err)
	assert.Equal(t, models.StageDetailsSubmitted, updated.Stage)

	cancelled, err := f.svc.Cancel(ctx, req.ID, signedUp)
	require.NoError(t, err)
	assert.Equal(t, models.StageCancelled, cancelled.Stage)
}

func TestSubmitValidation(t *testing.T) {
	f := newRequestFixture()

	in := validSubmission()
	in.EndDate = in.StartDate.Add(-time.Hour)
	_, err := f.svc.Submit(context.Background(), in, policy.Principal{})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
	assert.Equal(t, "Das Enddatum muss nach dem Startdatum liegen", validationMessage(t, err))

	in = validSubmission()
	in.RequesterEmail = "keine-mail"
	_, err = f.svc.Submit(context.Background(), in, policy.Principal{})
	assert.True(t, models.IsValidation(err))

	assert.Empty(t, f.notifier.templates())
}

func validationMessage(t *testing.T, err error) string {
	t.Helper()
	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	return ve.Message
}

func TestAcceptMovesToInitialAccepted(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitial)

	updated, err := f.svc.Accept(context.Background(), req.ID, adminPrincipal(), "Bitte Vertrag beilegen")
	require.NoError(t, err)
	assert.Equal(t, models.StageInitialAccepted, updated.Stage)
	assert.NotNil(t, updated.ReviewedAt)
	assert.Equal(t, "Bitte Vertrag beilegen", updated.AdminNotes)

	last := f.notifier.last()
	assert.Equal(t, notify.TemplateRequestAccepted, last.template)
	assert.Equal(t, []string{"erika@example.com"}, last.to)
}

func TestAcceptRequiresAdmin(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitial)

	_, err := f.svc.Accept(context.Background(), req.ID, memberPrincipal(), "")
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Equal(t, models.StageInitial, f.requests.stage(req.ID))
}

func TestRejectNeedsReason(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitial)

	_, err := f.svc.Reject(context.Background(), req.ID, adminPrincipal(), "  ")
	assert.True(t, models.IsValidation(err))

	updated, err := f.svc.Reject(context.Background(), req.ID, adminPrincipal(), "Termin bereits belegt")
	require.NoError(t, err)
	assert.Equal(t, models.StageRejected, updated.Stage)
	assert.Equal(t, "Termin bereits belegt", updated.RejectionReason)

	_, err = f.svc.Reject(context.Background(), req.ID, adminPrincipal(), "nochmal")
	assert.True(t, IsTransitionError(err))
}

func TestSubmitDetailsRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *models.DetailSubmission)
	}{
		{"end equals start", func(d *models.DetailSubmission) { d.EndDate = d.StartDate }},
		{"end before start", func(d *models.DetailSubmission) { d.EndDate = d.StartDate.Add(-4 * time.Hour) }},
		{"handover after start", func(d *models.DetailSubmission) { d.KeyHandoverAt = d.StartDate.Add(time.Minute) }},
		{"return before end", func(d *models.DetailSubmission) { d.KeyReturnAt = d.EndDate.Add(-time.Minute) }},
		{"not a pdf", func(d *models.DetailSubmission) { d.File.MimeType = "image/png" }},
		{"file too large", func(d *models.DetailSubmission) { d.File = pdf(int(models.MaxContractSize) + 1) }},
		{"missing file", func(d *models.DetailSubmission) { d.File = nil }},
		{"missing handover", func(d *models.DetailSubmission) { d.KeyHandoverAt = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRequestFixture()
			req := f.seed(t, models.StageInitialAccepted)

			details := validDetails()
			tt.mutate(&details)

			_, result, err := f.svc.SubmitDetails(context.Background(), req.ID, memberPrincipal(), details)
			require.Error(t, err)
			assert.True(t, models.IsValidation(err))
			assert.Equal(t, models.StoreFailed, result.Primary)
			assert.Equal(t, models.StageInitialAccepted, f.requests.stage(req.ID))
			assert.Nil(t, f.requests.raw(req.ID).DetailsSubmittedAt)
			assert.Zero(t, f.contracts.uploads)
		})
	}
}

func TestSubmitDetailsBoundaryValuesAccepted(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitialAccepted)

	details := validDetails()
	details.KeyHandoverAt = details.StartDate
	details.KeyReturnAt = details.EndDate
	details.File = pdf(int(models.MaxContractSize))

	updated, _, err := f.svc.SubmitDetails(context.Background(), req.ID, memberPrincipal(), details)
	require.NoError(t, err)
	assert.Equal(t, models.StageDetailsSubmitted, updated.Stage)
}

func TestSubmitDetailsEndBeforeStartMessage(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitialAccepted)

	details := validDetails()
	details.StartDate = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	details.EndDate = time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	details.KeyHandoverAt = details.StartDate
	details.KeyReturnAt = details.StartDate

	_, _, err := f.svc.SubmitDetails(context.Background(), req.ID, memberPrincipal(), details)
	require.Error(t, err)
	assert.Equal(t, "Das Enddatum muss nach dem Startdatum liegen", validationMessage(t, err))
	assert.Equal(t, models.StageInitialAccepted, f.requests.stage(req.ID))
}

func TestSubmitDetailsStoresBothCopies(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitialAccepted)

	updated, result, err := f.svc.SubmitDetails(context.Background(), req.ID, memberPrincipal(), validDetails())
	require.NoError(t, err)

	assert.Equal(t, models.StoreStored, result.Primary)
	assert.Equal(t, models.StoreStored, result.Secondary)
	assert.Equal(t, req.ID.String()+"/vertrag.pdf", result.URL)
	assert.Equal(t, models.StageDetailsSubmitted, updated.Stage)
	assert.Empty(t, updated.ContractFileData)
	assert.Equal(t, result.URL, updated.ContractFileURL)

	stored := f.requests.raw(req.ID)
	assert.NotEmpty(t, stored.ContractFileData)
	assert.NotNil(t, stored.DetailsSubmittedAt)
	assert.True(t, stored.HouseRulesAccepted)
	assert.Equal(t, int64(2048), stored.ContractFileSize)

	assert.Equal(t, notify.TemplateDetailsReceived, f.notifier.last().template)
}

func TestSubmitDetailsSecondaryFailureKeepsTransition(t *testing.T) {
	f := newRequestFixture()
	f.contracts.uploadErr = errors.New("bucket not found")
	req := f.seed(t, models.StageInitialAccepted)

	updated, result, err := f.svc.SubmitDetails(context.Background(), req.ID, memberPrincipal(), validDetails())
	require.NoError(t, err)
	assert.Equal(t, models.StoreStored, result.Primary)
	assert.Equal(t, models.StoreFailed, result.Secondary)
	assert.Contains(t, result.Error, "bucket not found")
	assert.Equal(t, models.StageDetailsSubmitted, updated.Stage)
	assert.Empty(t, f.requests.raw(req.ID).ContractFileURL)
}

func TestSubmitDetailsWithoutObjectStorage(t *testing.T) {
	f := newRequestFixture()
	f.svc.contracts = nil
	req := f.seed(t, models.StageInitialAccepted)

	_, result, err := f.svc.SubmitDetails(context.Background(), req.ID, memberPrincipal(), validDetails())
	require.NoError(t, err)
	assert.Equal(t, models.StoreStored, result.Primary)
	assert.Equal(t, models.StoreSkipped, result.Secondary)
}

func TestSubmitDetailsTwiceIsRejected(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitialAccepted)

	_, _, err := f.svc.SubmitDetails(context.Background(), req.ID, memberPrincipal(), validDetails())
	require.NoError(t, err)
	first := f.requests.raw(req.ID)

	second := validDetails()
	second.KeyReturnAt = second.KeyReturnAt.Add(time.Hour)
	_, _, err = f.svc.SubmitDetails(context.Background(), req.ID, memberPrincipal(), second)
	require.Error(t, err)
	assert.True(t, IsTransitionError(err))

	after := f.requests.raw(req.ID)
	assert.Equal(t, models.StageDetailsSubmitted, after.Stage)
	assert.True(t, first.KeyReturnAt.Equal(*after.KeyReturnAt))
	assert.Equal(t, 1, f.contracts.uploads)
}

func TestSubmitDetailsGuardsOnTimestamp(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitialAccepted)
	stored := f.requests.raw(req.ID)
	now := time.Now()
	stored.DetailsSubmittedAt = &now
	f.requests.put(stored)

	_, _, err := f.svc.SubmitDetails(context.Background(), req.ID, memberPrincipal(), validDetails())
	assert.True(t, IsTransitionError(err))
	assert.Equal(t, models.StageInitialAccepted, f.requests.stage(req.ID))
}

func TestSubmitDetailsGuardsOnStoredDetails(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitialAccepted)
	stored := f.requests.raw(req.ID)
	handover := eventStart.Add(-time.Hour)
	stored.KeyHandoverAt = &handover
	stored.ContractFileName = "alter-vertrag.pdf"
	f.requests.put(stored)
	require.Nil(t, stored.DetailsSubmittedAt)

	_, _, err := f.svc.SubmitDetails(context.Background(), req.ID, memberPrincipal(), validDetails())
	assert.True(t, IsTransitionError(err))
	assert.Equal(t, models.StageInitialAccepted, f.requests.stage(req.ID))
	assert.Equal(t, "alter-vertrag.pdf", f.requests.raw(req.ID).ContractFileName)
	assert.Zero(t, f.contracts.uploads)
}

func TestSubmitDetailsOnlyByOwner(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitialAccepted)

	stranger := policy.Principal{UserID: uuid.New(), Email: "max@example.com", Role: policy.RoleMember}
	_, _, err := f.svc.SubmitDetails(context.Background(), req.ID, stranger, validDetails())
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Equal(t, models.StageInitialAccepted, f.requests.stage(req.ID))
}

func TestCancelReachability(t *testing.T) {
	tests := []struct {
		stage   models.RequestStage
		allowed bool
	}{
		{models.StageInitial, true},
		{models.StageInitialAccepted, true},
		{models.StageDetailsSubmitted, true},
		{models.StageFinalAccepted, false},
		{models.StageRejected, false},
		{models.StageCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			f := newRequestFixture()
			req := f.seed(t, tt.stage)

			updated, err := f.svc.Cancel(context.Background(), req.ID, memberPrincipal())
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, models.StageCancelled, updated.Stage)
				assert.NotNil(t, updated.CancelledAt)
				assert.Equal(t, notify.TemplateRequestCancelled, f.notifier.last().template)
				return
			}
			require.Error(t, err)
			assert.True(t, IsTransitionError(err))
			assert.Equal(t, tt.stage, f.requests.stage(req.ID))
			assert.Empty(t, f.notifier.templates())
		})
	}
}

func TestCancelByStrangerForbidden(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitial)

	stranger := policy.Principal{UserID: uuid.New(), Email: "max@example.com", Role: policy.RoleMember}
	_, err := f.svc.Cancel(context.Background(), req.ID, stranger)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.svc.Cancel(context.Background(), req.ID, adminPrincipal())
	assert.NoError(t, err)
}

func TestFinalAcceptCreatesEventAndClearsBlock(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageDetailsSubmitted)
	ctx := context.Background()
	from, to := eventStart.Add(-24*time.Hour), eventEnd.Add(24*time.Hour)

	before, err := f.events.Calendar(ctx, from, to, policy.Principal{})
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, models.EntryTemporarilyBlocked, before[0].Kind)
	assert.Equal(t, BlockedSlotTitle, before[0].Title)

	updated, event, err := f.svc.FinalAccept(ctx, req.ID, adminPrincipal(), "")
	require.NoError(t, err)
	assert.Equal(t, models.StageFinalAccepted, updated.Stage)
	require.NotNil(t, updated.EventID)
	assert.Equal(t, event.ID, *updated.EventID)
	assert.Equal(t, "booking", event.EventType)
	assert.Equal(t, models.EventApproved, event.Status)

	after, err := f.events.Calendar(ctx, from, to, policy.Principal{})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, models.EntryEvent, after[0].Kind)
	assert.Equal(t, req.Title, after[0].Title)
	assert.True(t, after[0].StartDate.Equal(req.StartDate))
	assert.True(t, after[0].EndDate.Equal(req.EndDate))

	assert.Equal(t, notify.TemplateRequestApproved, f.notifier.last().template)
}

func TestFinalAcceptRequiresDetails(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitialAccepted)

	_, _, err := f.svc.FinalAccept(context.Background(), req.ID, adminPrincipal(), "")
	assert.True(t, IsTransitionError(err))
	assert.Zero(t, f.eventRepo.count())
}

func TestConcurrentStageChangeIsConflict(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitial)

	var once sync.Once
	f.requests.afterGet = func(id uuid.UUID) {
		once.Do(func() {
			other := f.requests.raw(id)
			other.Stage = models.StageRejected
			f.requests.put(other)
		})
	}

	_, err := f.svc.Accept(context.Background(), req.ID, adminPrincipal(), "")
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, models.StageRejected, f.requests.stage(req.ID))
	assert.Empty(t, f.notifier.templates())
}

func TestFinalAcceptConflictRemovesEvent(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageDetailsSubmitted)

	var once sync.Once
	f.requests.afterGet = func(id uuid.UUID) {
		once.Do(func() {
			other := f.requests.raw(id)
			other.Stage = models.StageCancelled
			f.requests.put(other)
		})
	}

	_, _, err := f.svc.FinalAccept(context.Background(), req.ID, adminPrincipal(), "")
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Zero(t, f.eventRepo.count())
}

// timeoutStageRepo lets the stage update outlive the request deadline.
type timeoutStageRepo struct {
	*fakeRequestRepo
	cancel context.CancelFunc
	commit bool
}

func (r *timeoutStageRepo) GetRequest(ctx context.Context, id uuid.UUID) (*models.EventRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.fakeRequestRepo.GetRequest(ctx, id)
}

func (r *timeoutStageRepo) UpdateRequestStage(ctx context.Context, id uuid.UUID, expected models.RequestStage, fields map[string]interface{}) (*models.EventRequest, error) {
	if r.commit {
		if _, err := r.fakeRequestRepo.UpdateRequestStage(ctx, id, expected, fields); err != nil {
			return nil, err
		}
	}
	r.cancel()
	return nil, context.DeadlineExceeded
}

type ctxEventsRepo struct {
	*fakeEventsRepo
}

func (r ctxEventsRepo) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.fakeEventsRepo.DeleteEvent(ctx, id)
}

func TestFinalAcceptTimeoutRemovesEvent(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageDetailsSubmitted)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := &timeoutStageRepo{fakeRequestRepo: f.requests, cancel: cancel}
	svc := NewRequestService(repo, ctxEventsRepo{f.eventRepo}, f.contracts, f.activity, f.notifier, policy.New("vorstand@example.com"), discardLogger())

	_, _, err := svc.FinalAccept(ctx, req.ID, adminPrincipal(), "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.StageDetailsSubmitted, f.requests.stage(req.ID))
	assert.Zero(t, f.eventRepo.count())
	assert.Empty(t, f.notifier.templates())
}

func TestFinalAcceptTimeoutAfterCommitKeepsEvent(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageDetailsSubmitted)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := &timeoutStageRepo{fakeRequestRepo: f.requests, cancel: cancel, commit: true}
	svc := NewRequestService(repo, ctxEventsRepo{f.eventRepo}, f.contracts, f.activity, f.notifier, policy.New("vorstand@example.com"), discardLogger())

	updated, event, err := svc.FinalAccept(ctx, req.ID, adminPrincipal(), "")
	require.NoError(t, err)
	assert.Equal(t, models.StageFinalAccepted, updated.Stage)
	require.NotNil(t, updated.EventID)
	assert.Equal(t, event.ID, *updated.EventID)
	assert.Equal(t, 1, f.eventRepo.count())
}

func TestNotificationFailureKeepsTransition(t *testing.T) {
	f := newRequestFixture()
	n, err := notify.NewNotifier(failingMailer{}, notify.Options{AdminEmails: []string{"vorstand@example.com"}}, discardLogger())
	require.NoError(t, err)
	f.svc.notifier = n
	req := f.seed(t, models.StageInitial)

	updated, err := f.svc.Accept(context.Background(), req.ID, adminPrincipal(), "")
	n.Wait()
	require.NoError(t, err)
	assert.Equal(t, models.StageInitialAccepted, updated.Stage)
	assert.Equal(t, models.StageInitialAccepted, f.requests.stage(req.ID))
}

type failingMailer struct{}

func (failingMailer) Send(context.Context, notify.Message) error {
	return errors.New("mail provider unavailable")
}

func TestUpdateNotesOnlyWhileOpen(t *testing.T) {
	f := newRequestFixture()
	open := f.seed(t, models.StageInitialAccepted)
	closed := f.seed(t, models.StageRejected)

	updated, err := f.svc.UpdateNotes(context.Background(), open.ID, adminPrincipal(), " Schlüssel bei Hausmeister ")
	require.NoError(t, err)
	assert.Equal(t, "Schlüssel bei Hausmeister", updated.AdminNotes)
	assert.Equal(t, models.StageInitialAccepted, updated.Stage)

	_, err = f.svc.UpdateNotes(context.Background(), closed.ID, adminPrincipal(), "x")
	assert.True(t, IsTransitionError(err))
}

func TestContractFileFallsBackToInlineCopy(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitialAccepted)
	_, _, err := f.svc.SubmitDetails(context.Background(), req.ID, memberPrincipal(), validDetails())
	require.NoError(t, err)

	dl, err := f.svc.ContractFile(context.Background(), req.ID, adminPrincipal())
	require.NoError(t, err)
	assert.Contains(t, dl.URL, "https://storage.example.com/signed/")

	f.contracts.signErr = errors.New("signing failed")
	dl, err = f.svc.ContractFile(context.Background(), req.ID, adminPrincipal())
	require.NoError(t, err)
	assert.Empty(t, dl.URL)
	assert.Len(t, dl.Data, 2048)
	assert.Equal(t, "vertrag.pdf", dl.Name)
	assert.Equal(t, models.ContractMimeType, dl.MimeType)
}

func TestContractFileMissing(t *testing.T) {
	f := newRequestFixture()
	req := f.seed(t, models.StageInitial)

	_, err := f.svc.ContractFile(context.Background(), req.ID, adminPrincipal())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConflictsListsOverlaps(t *testing.T) {
	f := newRequestFixture()
	ctx := context.Background()
	req := f.seed(t, models.StageInitial)
	blocking := f.seed(t, models.StageInitialAccepted)
	f.seed(t, models.StageRejected)

	_, err := f.eventRepo.CreateEvent(ctx, &models.Event{
		ID:        uuid.New(),
		Title:     "Vereinsabend",
		StartDate: eventStart.Add(time.Hour),
		EndDate:   eventStart.Add(3 * time.Hour),
		EventType: "club",
		Status:    models.EventApproved,
	})
	require.NoError(t, err)
	_, err = f.eventRepo.CreateEvent(ctx, &models.Event{
		ID:        uuid.New(),
		Title:     "Am Vortag",
		StartDate: eventStart.Add(-26 * time.Hour),
		EndDate:   eventStart.Add(-24 * time.Hour),
		EventType: "club",
		Status:    models.EventApproved,
	})
	require.NoError(t, err)

	conflicts, err := f.svc.Conflicts(ctx, req.ID, adminPrincipal())
	require.NoError(t, err)
	require.Len(t, conflicts, 2)

	var kinds []models.CalendarEntryKind
	for _, c := range conflicts {
		kinds = append(kinds, c.Kind)
		if c.Kind == models.EntryTemporarilyBlocked {
			assert.Equal(t, blocking.ID, c.ID)
		}
	}
	assert.ElementsMatch(t, []models.CalendarEntryKind{models.EntryEvent, models.EntryTemporarilyBlocked}, kinds)
	assert.Equal(t, models.StageInitial, f.requests.stage(req.ID))
}

func TestListMineAndAll(t *testing.T) {
	f := newRequestFixture()
	f.seed(t, models.StageInitial)
	f.seed(t, models.StageRejected)

	mine, err := f.svc.ListMine(context.Background(), memberPrincipal())
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = f.svc.ListMine(context.Background(), policy.Principal{})
	assert.ErrorIs(t, err, models.ErrForbidden)

	all, total, err := f.svc.ListAll(context.Background(), adminPrincipal(), models.RequestFilter{Stages: []models.RequestStage{models.StageInitial}})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 1, total)

	_, _, err = f.svc.ListAll(context.Background(), adminPrincipal(), models.RequestFilter{Stages: []models.RequestStage{"bogus"}})
	assert.True(t, models.IsValidation(err))

	_, _, err = f.svc.ListAll(context.Background(), memberPrincipal(), models.RequestFilter{})
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestTransitionsAreRecorded(t *testing.T) {
	f := newRequestFixture()
	ctx := context.Background()

	req, err := f.svc.Submit(ctx, validSubmission(), memberPrincipal())
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, req.ID, adminPrincipal(), "")
	require.NoError(t, err)

	entries, err := f.svc.Activity(ctx, req.ID, adminPrincipal(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "submitted", entries[0].Action)
	assert.Equal(t, "accepted", entries[1].Action)
	assert.Equal(t, models.StageInitial, entries[1].FromStage)
	assert.Equal(t, models.StageInitialAccepted, entries[1].ToStage)
	assert.Equal(t, testAdminID.String(), entries[1].ActorID)
}
