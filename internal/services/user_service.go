package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vereinsheim/portal/internal/helpers"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/policy"
)

var ErrWeakPassword = errors.New("password is not strong enough")

type UserService struct {
	userRepo models.UserRepo
	policy   *policy.Policy
}

func NewUserService(userRepo models.UserRepo, pol *policy.Policy) *UserService {
	return &UserService{
		userRepo: userRepo,
		policy:   pol,
	}
}

func (us *UserService) CreateUser(ctx context.Context, user *models.User) (interface{}, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.FullName = helpers.StringTrim(user.FullName)
	user.Username = helpers.StringTrim(user.Username)
	if err := models.Validate.Struct(user); err != nil {
		return nil, models.NewValidationError("", "Bitte geben Sie Name, E-Mail-Adresse und Passwort an.")
	}

	if !helpers.IsPasswordStrong(user.Password) {
		return nil, ErrWeakPassword
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Role = policy.RoleMember

	return us.userRepo.CreateUser(ctx, user)
}

func (us *UserService) AuthenticateUser(ctx context.Context, email, password string) (interface{}, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := models.Validate.Var(email, "required,email"); err != nil {
		return nil, models.NewValidationError("email", "Bitte geben Sie eine gültige E-Mail-Adresse ein.")
	}
	if err := models.Validate.Var(password, "required,min=8"); err != nil {
		return nil, models.NewValidationError("password", "Das Passwort muss mindestens 8 Zeichen lang sein.")
	}
	response, err := us.userRepo.AuthenticateUser(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return response, nil
}

func (us *UserService) RefreshToken(ctx context.Context, refreshToken string) (interface{}, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}
	response, err := us.userRepo.RefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return response, nil
}

func (us *UserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	res, err := us.userRepo.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return res, nil
}

func (us *UserService) ListUsers(ctx context.Context, actor policy.Principal, offset, limit int) ([]*models.User, int, error) {
	if d := us.policy.CanAccess(actor, policy.AdminPanel, policy.Read); !d.Allowed {
		return nil, 0, fmt.Errorf("%w: %s", models.ErrForbidden, d.Reason)
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return us.userRepo.ListUsers(ctx, offset, limit)
}

// UpdateProfile changes the caller's own profile. The role is not part of the patch.
func (us *UserService) UpdateProfile(ctx context.Context, actor policy.Principal, id uuid.UUID, patch models.ProfilePatch) (*models.User, error) {
	if d := us.policy.CanAccessRecord(actor, policy.Profiles, policy.Update, &policy.Target{OwnerID: &id}); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", models.ErrForbidden, d.Reason)
	}
	if err := models.Validate.Struct(patch); err != nil {
		return nil, models.NewValidationError("", "Bitte prüfen Sie Ihre Angaben.")
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil, models.NewValidationError("", "Es wurden keine Änderungen übermittelt.")
	}
	fields["updated_at"] = time.Now()

	updatedUser, err := us.userRepo.UpdateUser(ctx, fields, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return updatedUser, nil
}

func (us *UserService) ChangeRole(ctx context.Context, actor policy.Principal, id uuid.UUID, role string) (*models.User, error) {
	if d := us.policy.CanAccess(actor, policy.Profiles, policy.ChangeRole); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", models.ErrForbidden, d.Reason)
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !models.ValidRole(role) {
		return nil, models.NewValidationError("role", "Unbekannte Rolle: "+role)
	}
	if id == actor.UserID && role != policy.RoleSuperAdmin {
		return nil, models.NewValidationError("role", "Sie können Ihre eigene Superadmin-Rolle nicht entfernen.")
	}
	return us.userRepo.UpdateUser(ctx, map[string]interface{}{
		"role":       role,
		"updated_at": time.Now(),
	}, id)
}

func (us *UserService) DeleteUser(ctx context.Context, actor policy.Principal, id uuid.UUID) error {
	if d := us.policy.CanAccess(actor, policy.Profiles, policy.Delete); !d.Allowed {
		return fmt.Errorf("%w: %s", models.ErrForbidden, d.Reason)
	}
	if id == actor.UserID {
		return models.NewValidationError("id", "Sie können Ihr eigenes Profil nicht löschen.")
	}
	if err := us.userRepo.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
