package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/notify"
	"github.com/vereinsheim/portal/internal/policy"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// patch applies a column map the way PostgREST would, via the JSON names.
func patch[T any](row *T, fields map[string]interface{}) (*T, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k, v := range fields {
		m[k] = v
	}
	raw, err = json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type fakeRequestRepo struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*models.EventRequest
	afterGet func(id uuid.UUID)
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{rows: make(map[uuid.UUID]*models.EventRequest)}
}

func (f *fakeRequestRepo) put(r *models.EventRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.rows[r.ID] = &cp
}

func (f *fakeRequestRepo) stage(id uuid.UUID) models.RequestStage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Stage
}

func (f *fakeRequestRepo) raw(id uuid.UUID) *models.EventRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.rows[id]
	return &cp
}

func (f *fakeRequestRepo) CreateRequest(_ context.Context, req *models.EventRequest) (*models.EventRequest, error) {
	f.put(req)
	cp := *req
	return &cp, nil
}

func (f *fakeRequestRepo) GetRequest(_ context.Context, id uuid.UUID) (*models.EventRequest, error) {
	f.mu.Lock()
	row, ok := f.rows[id]
	var cp models.EventRequest
	if ok {
		cp = *row
		cp.ContractFileData = ""
	}
	f.mu.Unlock()
	if !ok {
		return nil, models.ErrNotFound
	}
	if f.afterGet != nil {
		f.afterGet(id)
	}
	return &cp, nil
}

func (f *fakeRequestRepo) GetContractData(_ context.Context, id uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return "", models.ErrNotFound
	}
	return row.ContractFileData, nil
}

func (f *fakeRequestRepo) ListRequests(_ context.Context, filter models.RequestFilter) ([]*models.EventRequest, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.EventRequest
	for _, r := range f.rows {
		if len(filter.Stages) > 0 {
			match := false
			for _, s := range filter.Stages {
				match = match || r.Stage == s
			}
			if !match {
				continue
			}
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (f *fakeRequestRepo) ListRequestsByOwner(_ context.Context, userID uuid.UUID, email string) ([]*models.EventRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.EventRequest
	for _, r := range f.rows {
		if r.OwnedBy(userID, email) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) ListBlockingRequests(_ context.Context, from, to time.Time) ([]*models.EventRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.EventRequest
	for _, r := range f.rows {
		if r.Stage.BlocksCalendar() && r.Overlaps(from, to) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) UpdateRequestStage(_ context.Context, id uuid.UUID, expected models.RequestStage, fields map[string]interface{}) (*models.EventRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.Stage != expected {
		return nil, models.ErrConflict
	}
	updated, err := patch(row, fields)
	if err != nil {
		return nil, err
	}
	f.rows[id] = updated
	cp := *updated
	return &cp, nil
}

func (f *fakeRequestRepo) UpdateRequestFields(_ context.Context, id uuid.UUID, fields map[string]interface{}) (*models.EventRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	updated, err := patch(row, fields)
	if err != nil {
		return nil, err
	}
	f.rows[id] = updated
	cp := *updated
	cp.ContractFileData = ""
	return &cp, nil
}

type fakeEventsRepo struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*models.Event
	createErr error
}

func newFakeEventsRepo() *fakeEventsRepo {
	return &fakeEventsRepo{rows: make(map[uuid.UUID]*models.Event)}
}

func (f *fakeEventsRepo) CreateEvent(_ context.Context, ev *models.Event) (*models.Event, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ev
	f.rows[ev.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeEventsRepo) GetEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.rows[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (f *fakeEventsRepo) ListEvents(_ context.Context, from, to time.Time, includePrivate bool) ([]*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Event
	for _, ev := range f.rows {
		if ev.Status == models.EventCancelled || !ev.Overlaps(from, to) {
			continue
		}
		if ev.IsPrivate && !includePrivate {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (f *fakeEventsRepo) UpdateEvent(_ context.Context, id uuid.UUID, fields map[string]interface{}) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	updated, err := patch(row, fields)
	if err != nil {
		return nil, err
	}
	f.rows[id] = updated
	cp := *updated
	return &cp, nil
}

func (f *fakeEventsRepo) DeleteEvent(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return models.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeEventsRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeContractStore struct {
	uploadErr error
	signErr   error
	uploads   int
}

func (f *fakeContractStore) UploadContract(_ context.Context, requestID uuid.UUID, file *models.ContractFile) (string, error) {
	f.uploads++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return requestID.String() + "/" + file.Name, nil
}

func (f *fakeContractStore) ContractURL(_ context.Context, objectPath string) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://storage.example.com/signed/" + objectPath, nil
}

type fakeActivity struct {
	mu      sync.Mutex
	entries []*models.RequestActivity
}

func (f *fakeActivity) RecordActivity(_ context.Context, a *models.RequestActivity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, a)
	return nil
}

func (f *fakeActivity) ListActivity(_ context.Context, requestID uuid.UUID, _ int) ([]*models.RequestActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RequestActivity
	for _, a := range f.entries {
		if a.RequestID == requestID.String() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeActivity) EnsureIndexes(context.Context) error { return nil }

type sentNotification struct {
	template string
	to       []string
	data     notify.Data
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeDispatcher) Dispatch(template string, to []string, data notify.Data) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{template: template, to: to, data: data})
}

func (f *fakeDispatcher) templates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.template)
	}
	return out
}

func (f *fakeDispatcher) last() sentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeContestRepo struct {
	mu       sync.Mutex
	contests map[uuid.UUID]*models.SpecialEvent
	entries  map[uuid.UUID]*models.Entry
}

func newFakeContestRepo() *fakeContestRepo {
	return &fakeContestRepo{
		contests: make(map[uuid.UUID]*models.SpecialEvent),
		entries:  make(map[uuid.UUID]*models.Entry),
	}
}

func (f *fakeContestRepo) ListSpecialEvents(_ context.Context, activeOnly bool) ([]*models.SpecialEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SpecialEvent
	for _, se := range f.contests {
		if activeOnly && !se.IsActive {
			continue
		}
		cp := *se
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeContestRepo) GetSpecialEvent(_ context.Context, id uuid.UUID) (*models.SpecialEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	se, ok := f.contests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *se
	return &cp, nil
}

func (f *fakeContestRepo) GetSpecialEventBySlug(_ context.Context, slug string) (*models.SpecialEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, se := range f.contests {
		if se.Slug == slug {
			cp := *se
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeContestRepo) CreateSpecialEvent(_ context.Context, se *models.SpecialEvent) (*models.SpecialEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.contests {
		if existing.Slug == se.Slug {
			return nil, errors.New("duplicate key value violates unique constraint")
		}
	}
	cp := *se
	f.contests[se.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeContestRepo) UpdateSpecialEvent(_ context.Context, id uuid.UUID, fields map[string]interface{}) (*models.SpecialEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.contests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	updated, err := patch(row, fields)
	if err != nil {
		return nil, err
	}
	f.contests[id] = updated
	cp := *updated
	return &cp, nil
}

func (f *fakeContestRepo) CreateEntry(_ context.Context, e *models.Entry) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.entries[e.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeContestRepo) GetEntry(_ context.Context, id uuid.UUID) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeContestRepo) ListEntries(_ context.Context, specialEventID uuid.UUID, status models.EntryStatus) ([]*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Entry
	for _, e := range f.entries {
		if e.SpecialEventID != specialEventID || (status != "" && e.Status != status) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeContestRepo) UpdateEntryStatus(_ context.Context, id uuid.UUID, status models.EntryStatus) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	e.Status = status
	cp := *e
	return &cp, nil
}

// fakeVotesRepo keys rows like the unique constraint on (special_event_id, voter_token).
type fakeVotesRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Vote
}

func newFakeVotesRepo() *fakeVotesRepo {
	return &fakeVotesRepo{rows: make(map[string]*models.Vote)}
}

func voteKey(eventID uuid.UUID, token string) string {
	return eventID.String() + "|" + token
}

func (f *fakeVotesRepo) UpsertVote(_ context.Context, v *models.Vote) (*models.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := voteKey(v.SpecialEventID, v.VoterToken)
	if existing, ok := f.rows[key]; ok {
		existing.EntryID = v.EntryID
		cp := *existing
		return &cp, nil
	}
	cp := *v
	cp.ID = uuid.New()
	f.rows[key] = &cp
	out := cp
	return &out, nil
}

func (f *fakeVotesRepo) DeleteVote(_ context.Context, eventID uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, voteKey(eventID, token))
	return nil
}

func (f *fakeVotesRepo) GetVote(_ context.Context, eventID uuid.UUID, token string) (*models.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.rows[voteKey(eventID, token)]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVotesRepo) CountVotes(_ context.Context, eventID uuid.UUID) (map[uuid.UUID]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, v := range f.rows {
		if v.SpecialEventID == eventID {
			counts[v.EntryID]++
		}
	}
	return counts, nil
}

func (f *fakeVotesRepo) rowsFor(eventID uuid.UUID, token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.rows {
		if v.SpecialEventID == eventID && v.VoterToken == token {
			n++
		}
	}
	return n
}

type fakeCDN struct {
	err     error
	sources []string
}

func (f *fakeCDN) UploadImage(_ context.Context, source, folder string) (string, error) {
	f.sources = append(f.sources, source)
	if f.err != nil {
		return "", f.err
	}
	return "https://res.cloudinary.example.com/" + folder + "/img.jpg", nil
}

type fakeImageStore struct {
	names []string
}

func (f *fakeImageStore) UploadContestImage(_ context.Context, id uuid.UUID, name, contentType string, _ []byte) (string, error) {
	f.names = append(f.names, name)
	return "https://project.supabase.co/storage/v1/object/public/special-event-images/" + id.String() + "/" + name + "?type=" + strings.ReplaceAll(contentType, "/", "-"), nil
}

var (
	testAdminID  = uuid.MustParse("00000000-0000-0000-0000-00000000a001")
	testMemberID = uuid.MustParse("00000000-0000-0000-0000-00000000b001")
)

func adminPrincipal() policy.Principal {
	return policy.Principal{UserID: testAdminID, Email: "vorstand@example.com", Role: policy.RoleAdmin}
}

func memberPrincipal() policy.Principal {
	return policy.Principal{UserID: testMemberID, Email: "erika@example.com", Role: policy.RoleMember}
}
