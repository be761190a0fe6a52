// Package policy decides what a principal may do with a resource. The answers
// drive route guards and UI hints; row-level security in the backend stays the
// actual boundary.
package policy

import (
	"strings"

	"github.com/google/uuid"
)

type Resource string

const (
	Events        Resource = "events"
	EventRequests Resource = "event_requests"
	SpecialEvents Resource = "special_events"
	Entries       Resource = "entries"
	Votes         Resource = "votes"
	Profiles      Resource = "profiles"
	AdminPanel    Resource = "admin_panel"
)

type Action string

const (
	Read          Action = "read"
	Create        Action = "create"
	Update        Action = "update"
	Delete        Action = "delete"
	Review        Action = "review"
	Cancel        Action = "cancel"
	SubmitDetails Action = "submit_details"
	Moderate      Action = "moderate"
	ChangeRole    Action = "change_role"
)

const (
	RoleGuest      = "guest"
	RoleMember     = "member"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Principal is whoever is asking. The zero value is an anonymous visitor.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

func (p Principal) Authenticated() bool {
	return p.UserID != uuid.Nil
}

// Target optionally narrows a decision to one record.
type Target struct {
	OwnerID    *uuid.UUID
	OwnerEmail string
}

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Policy holds the one configured admin address that is treated as admin
// regardless of its profile role.
type Policy struct {
	adminEmail string
}

func New(adminEmail string) *Policy {
	return &Policy{adminEmail: strings.ToLower(strings.TrimSpace(adminEmail))}
}

func (p *Policy) IsAdmin(pr Principal) bool {
	if pr.Role == RoleAdmin || pr.Role == RoleSuperAdmin {
		return true
	}
	return p.adminEmail != "" && strings.EqualFold(strings.TrimSpace(pr.Email), p.adminEmail)
}

func (p *Policy) IsSuperAdmin(pr Principal) bool {
	return pr.Role == RoleSuperAdmin
}

// CanAccess answers for the resource as a whole.
func (p *Policy) CanAccess(pr Principal, res Resource, act Action) Decision {
	return p.CanAccessRecord(pr, res, act, nil)
}

// CanAccessRecord answers for a single record when ownership matters.
func (p *Policy) CanAccessRecord(pr Principal, res Resource, act Action, target *Target) Decision {
	admin := p.IsAdmin(pr)

	switch res {
	case Events:
		if act == Read {
			return allow()
		}
		if admin {
			return allow()
		}
		return deny("Nur der Vorstand kann Veranstaltungen bearbeiten.")

	case EventRequests:
		switch act {
		case Create:
			return allow()
		case Read, Cancel, SubmitDetails:
			if admin {
				return allow()
			}
			if target == nil {
				if act == Read && !pr.Authenticated() {
					return deny("Bitte melden Sie sich an.")
				}
				return allow()
			}
			if owns(pr, target) {
				return allow()
			}
			return deny("Diese Anfrage gehört nicht zu Ihrem Konto.")
		case Review, Update, Delete:
			if admin {
				return allow()
			}
			return deny("Nur der Vorstand kann Anfragen bearbeiten.")
		}

	case SpecialEvents:
		if act == Read {
			return allow()
		}
		if admin {
			return allow()
		}
		return deny("Nur der Vorstand kann Wettbewerbe verwalten.")

	case Entries:
		switch act {
		case Read, Create:
			return allow()
		case Moderate, Update, Delete:
			if admin {
				return allow()
			}
			return deny("Nur der Vorstand kann Beiträge freigeben.")
		}

	case Votes:
		switch act {
		case Read, Create, Update, Delete:
			return allow()
		}

	case Profiles:
		switch act {
		case Read, Update:
			if !pr.Authenticated() {
				return deny("Bitte melden Sie sich an.")
			}
			if target == nil || admin || owns(pr, target) {
				return allow()
			}
			return deny("Sie können nur Ihr eigenes Profil bearbeiten.")
		case ChangeRole, Delete:
			if p.IsSuperAdmin(pr) {
				return allow()
			}
			return deny("Nur Superadmins können Rollen ändern oder Profile löschen.")
		}

	case AdminPanel:
		if admin {
			return allow()
		}
		return deny("Kein Zugriff auf den Verwaltungsbereich.")
	}

	return deny("Diese Aktion ist nicht erlaubt.")
}

func owns(pr Principal, t *Target) bool {
	if t.OwnerID != nil && pr.UserID != uuid.Nil && *t.OwnerID == pr.UserID {
		return true
	}
	return t.OwnerEmail != "" && pr.Email != "" && strings.EqualFold(t.OwnerEmail, pr.Email)
}
