package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleGuest      = "guest"
	RoleMember     = "member"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

func ValidRole(role string) bool {
	switch role {
	case RoleGuest, RoleMember, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	FullName    string    `db:"fullname" json:"fullname" validate:"required,max=120"`
	Email       string    `db:"email" json:"email" validate:"required,email"`
	Password    string    `db:"password" json:"password,omitempty" validate:"required,min=8"`
	Role        string    `db:"role" json:"role"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ProfilePatch holds the fields a user may change on their own profile.
type ProfilePatch struct {
	FullName    *string `json:"fullname" validate:"omitempty,max=120"`
	Username    *string `json:"username" validate:"omitempty,max=60"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=40"`
}

func (p ProfilePatch) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if p.FullName != nil {
		fields["fullname"] = strings.TrimSpace(*p.FullName)
	}
	if p.Username != nil {
		fields["username"] = strings.TrimSpace(*p.Username)
	}
	if p.PhoneNumber != nil {
		fields["phone_number"] = strings.TrimSpace(*p.PhoneNumber)
	}
	return fields
}
