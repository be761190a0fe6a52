package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EntryStatus string

const (
	EntryPending  EntryStatus = "pending"
	EntryApproved EntryStatus = "approved"
	EntryRejected EntryStatus = "rejected"
)

func (s EntryStatus) Valid() bool {
	return s == EntryPending || s == EntryApproved || s == EntryRejected
}

type SpecialEvent struct {
	ID                 uuid.UUID  `json:"id"`
	Slug               string     `json:"slug" validate:"required,max=80"`
	Title              string     `json:"title" validate:"required,max=200"`
	Description        string     `json:"description"`
	IsActive           bool       `json:"is_active"`
	VotingOpen         bool       `json:"voting_open"`
	SubmissionDeadline *time.Time `json:"submission_deadline,omitempty"`
	VotingDeadline     *time.Time `json:"voting_deadline,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (s *SpecialEvent) AcceptsEntries(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	return s.SubmissionDeadline == nil || now.Before(*s.SubmissionDeadline)
}

func (s *SpecialEvent) AcceptsVotes(now time.Time) bool {
	if !s.IsActive || !s.VotingOpen {
		return false
	}
	return s.VotingDeadline == nil || now.Before(*s.VotingDeadline)
}

type Entry struct {
	ID             uuid.UUID   `json:"id"`
	SpecialEventID uuid.UUID   `json:"special_event_id"`
	Title          string      `json:"title"`
	Description    string      `json:"description,omitempty"`
	ImageURL       string      `json:"image_url"`
	SubmitterName  string      `json:"submitter_name"`
	SubmitterEmail string      `json:"submitter_email,omitempty"`
	Status         EntryStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// EntryWithVotes is an approved entry as shown on the public gallery.
type EntryWithVotes struct {
	Entry
	Votes int `json:"votes"`
}

type Vote struct {
	ID             uuid.UUID `json:"id"`
	SpecialEventID uuid.UUID `json:"special_event_id"`
	EntryID        uuid.UUID `json:"entry_id"`
	VoterToken     string    `json:"voter_token"`
	CreatedAt      time.Time `json:"created_at"`
}

// EntrySubmission is the public photo upload form.
type EntrySubmission struct {
	Title          string `json:"title" validate:"required,max=120"`
	Description    string `json:"description" validate:"max=2000"`
	Image          string `json:"image" validate:"required"`
	SubmitterName  string `json:"submitter_name" validate:"required,max=120"`
	SubmitterEmail string `json:"submitter_email" validate:"required,email"`
}

func (e *EntrySubmission) Sanitize() {
	e.Title = strings.TrimSpace(e.Title)
	e.Description = strings.TrimSpace(e.Description)
	e.Image = strings.TrimSpace(e.Image)
	e.SubmitterName = strings.TrimSpace(e.SubmitterName)
	e.SubmitterEmail = strings.ToLower(strings.TrimSpace(e.SubmitterEmail))
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// ValidVoterToken bounds the anonymous voter id to something a browser would generate.
func ValidVoterToken(token string) bool {
	if len(token) < 8 || len(token) > 128 {
		return false
	}
	for _, r := range token {
		if !(r == '-' || r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}

// SpecialEventPatch is a partial admin update of a contest.
type SpecialEventPatch struct {
	Title              *string    `json:"title"`
	Description        *string    `json:"description"`
	IsActive           *bool      `json:"is_active"`
	VotingOpen         *bool      `json:"voting_open"`
	SubmissionDeadline *time.Time `json:"submission_deadline"`
	VotingDeadline     *time.Time `json:"voting_deadline"`
}

func (p SpecialEventPatch) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if p.Title != nil {
		fields["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		fields["description"] = strings.TrimSpace(*p.Description)
	}
	if p.IsActive != nil {
		fields["is_active"] = *p.IsActive
	}
	if p.VotingOpen != nil {
		fields["voting_open"] = *p.VotingOpen
	}
	if p.SubmissionDeadline != nil {
		fields["submission_deadline"] = *p.SubmissionDeadline
	}
	if p.VotingDeadline != nil {
		fields["voting_deadline"] = *p.VotingDeadline
	}
	return fields
}

// MaxEntryImageSize bounds inline contest uploads (8 MiB).
const MaxEntryImageSize = 8 * 1024 * 1024
