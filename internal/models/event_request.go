package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type RequestStage string

const (
	StageInitial          RequestStage = "initial"
	StageInitialAccepted  RequestStage = "initial_accepted"
	StageDetailsSubmitted RequestStage = "details_submitted"
	StageFinalAccepted    RequestStage = "final_accepted"
	StageRejected         RequestStage = "rejected"
	StageCancelled        RequestStage = "cancelled"
)

// MaxContractSize is the largest signed contract accepted (10 MiB).
const MaxContractSize int64 = 10 * 1024 * 1024

const ContractMimeType = "application/pdf"

var stageTransitions = map[RequestStage][]RequestStage{
	StageInitial:          {StageInitialAccepted, StageRejected, StageCancelled},
	StageInitialAccepted:  {StageDetailsSubmitted, StageRejected, StageCancelled},
	StageDetailsSubmitted: {StageFinalAccepted, StageRejected, StageCancelled},
}

var stageLabels = map[RequestStage]string{
	StageInitial:          "Eingegangen",
	StageInitialAccepted:  "Vorläufig angenommen",
	StageDetailsSubmitted: "Details eingereicht",
	StageFinalAccepted:    "Bestätigt",
	StageRejected:         "Abgelehnt",
	StageCancelled:        "Storniert",
}

func (s RequestStage) Valid() bool {
	_, ok := stageLabels[s]
	return ok
}

// IsTerminal reports whether the ordinary workflow may no longer touch the request.
func (s RequestStage) IsTerminal() bool {
	return s == StageFinalAccepted || s == StageRejected || s == StageCancelled
}

// BlocksCalendar reports whether the requested window shows as temporarily blocked.
func (s RequestStage) BlocksCalendar() bool {
	return s == StageInitialAccepted || s == StageDetailsSubmitted
}

func (s RequestStage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s RequestStage) CanTransitionTo(next RequestStage) bool {
	for _, allowed := range stageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckTransition returns a *TransitionError with a user-facing message when
// from -> to is not part of the lifecycle.
func CheckTransition(from, to RequestStage) error {
	if from.CanTransitionTo(to) {
		return nil
	}
	msg := "Diese Aktion ist im aktuellen Status der Anfrage nicht möglich."
	switch {
	case to == StageCancelled:
		msg = "Diese Anfrage kann nicht mehr storniert werden."
	case to == StageRejected:
		msg = "Diese Anfrage wurde bereits abgeschlossen."
	case to == StageDetailsSubmitted:
		msg = "Die Details wurden bereits eingereicht oder die Anfrage wurde noch nicht angenommen."
	case to == StageInitialAccepted && from != StageInitial:
		msg = "Diese Anfrage wurde bereits bearbeitet."
	case to == StageFinalAccepted:
		msg = "Die Anfrage kann erst nach Eingang der Details endgültig bestätigt werden."
	}
	return &TransitionError{From: from, To: to, Message: msg}
}

type EventRequest struct {
	ID              uuid.UUID    `json:"id"`
	UserID          *uuid.UUID   `json:"user_id,omitempty"`
	Title           string       `json:"title"`
	RequesterName   string       `json:"requester_name"`
	RequesterEmail  string       `json:"requester_email"`
	RequesterPhone  string       `json:"requester_phone,omitempty"`
	Description     string       `json:"description"`
	StartDate       time.Time    `json:"start_date"`
	EndDate         time.Time    `json:"end_date"`
	Location        string       `json:"location,omitempty"`
	MaxParticipants int          `json:"max_participants"`
	IsPrivate       bool         `json:"is_private"`
	Stage           RequestStage `json:"stage"`
	AdminNotes      string       `json:"admin_notes,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	EventID         *uuid.UUID   `json:"event_id,omitempty"`

	KeyHandoverAt *time.Time `json:"key_handover_at,omitempty"`
	KeyReturnAt   *time.Time `json:"key_return_at,omitempty"`

	ContractFileName string `json:"contract_file_name,omitempty"`
	ContractFileSize int64  `json:"contract_file_size,omitempty"`
	ContractMimeType string `json:"contract_mime_type,omitempty"`
	ContractFileURL  string `json:"contract_file_url,omitempty"`
	ContractFileData string `json:"contract_file_data,omitempty"`

	HouseRulesAccepted      bool `json:"house_rules_accepted"`
	LeaseAccepted           bool `json:"lease_accepted"`
	TermsAccepted           bool `json:"terms_accepted"`
	YouthProtectionAccepted bool `json:"youth_protection_accepted"`

	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ReviewedAt         *time.Time `json:"reviewed_at,omitempty"`
	DetailsSubmittedAt *time.Time `json:"details_submitted_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

// HasDetails reports whether a detail submission was already recorded.
func (r *EventRequest) HasDetails() bool {
	return r.DetailsSubmittedAt != nil || r.KeyHandoverAt != nil || r.ContractFileName != ""
}

// OwnedBy matches the authenticated user id, falling back to the guest email.
func (r *EventRequest) OwnedBy(userID uuid.UUID, email string) bool {
	if r.UserID != nil && userID != uuid.Nil && *r.UserID == userID {
		return true
	}
	return email != "" && strings.EqualFold(r.RequesterEmail, email)
}

func (r *EventRequest) Overlaps(start, end time.Time) bool {
	return r.StartDate.Before(end) && start.Before(r.EndDate)
}

// RequestSubmission is the first-stage form.
type RequestSubmission struct {
	Title           string    `json:"title"`
	RequesterName   string    `json:"requester_name"`
	RequesterEmail  string    `json:"requester_email"`
	RequesterPhone  string    `json:"requester_phone"`
	Description     string    `json:"description"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	Location        string    `json:"location"`
	MaxParticipants int       `json:"max_participants"`
	IsPrivate       bool      `json:"is_private"`
}

func (s *RequestSubmission) Sanitize() {
	s.Title = strings.TrimSpace(s.Title)
	s.RequesterName = strings.TrimSpace(s.RequesterName)
	s.RequesterEmail = strings.ToLower(strings.TrimSpace(s.RequesterEmail))
	s.RequesterPhone = strings.TrimSpace(s.RequesterPhone)
	s.Description = strings.TrimSpace(s.Description)
	s.Location = strings.TrimSpace(s.Location)
}

func (s RequestSubmission) Validate() error {
	if s.RequesterName == "" || s.RequesterEmail == "" || s.Description == "" || s.Title == "" {
		return NewValidationError("", "Bitte füllen Sie alle Pflichtfelder aus.")
	}
	if err := Validate.Var(s.RequesterEmail, "email"); err != nil {
		return NewValidationError("requester_email", "Bitte geben Sie eine gültige E-Mail-Adresse ein.")
	}
	if len(s.Title) > 200 {
		return NewValidationError("title", "Der Titel darf höchstens 200 Zeichen lang sein.")
	}
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return NewValidationError("start_date", "Bitte geben Sie Start- und Enddatum an.")
	}
	if !s.EndDate.After(s.StartDate) {
		return NewValidationError("end_date", "Das Enddatum muss nach dem Startdatum liegen")
	}
	if s.MaxParticipants < 0 {
		return NewValidationError("max_participants", "Die Teilnehmerzahl darf nicht negativ sein.")
	}
	return nil
}

// ContractFile is an uploaded signed contract.
type ContractFile struct {
	Name     string
	MimeType string
	Size     int64
	Data     []byte
}

// DetailSubmission is the second-stage form sent after the initial acceptance.
type DetailSubmission struct {
	StartDate               time.Time `json:"start_date"`
	EndDate                 time.Time `json:"end_date"`
	KeyHandoverAt           time.Time `json:"key_handover_at"`
	KeyReturnAt             time.Time `json:"key_return_at"`
	HouseRulesAccepted      bool      `json:"house_rules_accepted"`
	LeaseAccepted           bool      `json:"lease_accepted"`
	TermsAccepted           bool      `json:"terms_accepted"`
	YouthProtectionAccepted bool      `json:"youth_protection_accepted"`

	File *ContractFile `json:"-"`
}

// Validate applies the date and file rules of the detail form.
func (d DetailSubmission) Validate() error {
	if d.StartDate.IsZero() || d.EndDate.IsZero() || d.KeyHandoverAt.IsZero() || d.KeyReturnAt.IsZero() {
		return NewValidationError("", "Bitte füllen Sie alle Datums- und Zeitfelder aus.")
	}
	if !d.EndDate.After(d.StartDate) {
		return NewValidationError("end_date", "Das Enddatum muss nach dem Startdatum liegen")
	}
	if d.KeyHandoverAt.After(d.StartDate) {
		return NewValidationError("key_handover_at", "Die Schlüsselübergabe muss vor oder zum Veranstaltungsbeginn erfolgen")
	}
	if d.KeyReturnAt.Before(d.EndDate) {
		return NewValidationError("key_return_at", "Die Schlüsselrückgabe muss nach oder zum Veranstaltungsende erfolgen")
	}
	return ValidateContractFile(d.File)
}

func ValidateContractFile(f *ContractFile) error {
	if f == nil || len(f.Data) == 0 {
		return NewValidationError("contract", "Bitte laden Sie den unterschriebenen Vertrag hoch.")
	}
	if f.MimeType != ContractMimeType {
		return NewValidationError("contract", "Bitte laden Sie den Vertrag als PDF-Datei hoch.")
	}
	size := f.Size
	if int64(len(f.Data)) > size {
		size = int64(len(f.Data))
	}
	if size > MaxContractSize {
		return NewValidationError("contract", "Die Datei darf maximal 10 MB groß sein.")
	}
	return nil
}

// StoreOutcome describes one write of an uploaded file.
type StoreOutcome string

const (
	StoreStored  StoreOutcome = "stored"
	StoreFailed  StoreOutcome = "failed"
	StoreSkipped StoreOutcome = "skipped"
)

// FileStoreResult reports both writes of a contract: the inline copy in the
// request row (authoritative) and the object storage copy (best effort).
type FileStoreResult struct {
	Primary   StoreOutcome `json:"primary"`
	Secondary StoreOutcome `json:"secondary"`
	URL       string       `json:"url,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// RequestFilter narrows admin listings.
type RequestFilter struct {
	Stages []RequestStage
	From   *time.Time
	To     *time.Time
	Offset int
	Limit  int
}

// ContractDownload is either a signed link or the decoded inline copy.
type ContractDownload struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"-"`
}
