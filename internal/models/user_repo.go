package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go/types"
)

const profileColumns = "id,email,username,fullname,role,phone_number,created_at,updated_at"

type UserRepo interface {
	CreateUser(ctx context.Context, user *User) (interface{}, error)
	AuthenticateUser(ctx context.Context, email, password string) (interface{}, error)
	RefreshToken(ctx context.Context, refreshToken string) (interface{}, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]*User, int, error)
	UpdateUser(ctx context.Context, user map[string]interface{}, userid uuid.UUID) (*User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

func ConvertToUser(raw map[string]interface{}) (*User, error) {
	userBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw user: %v", err)
	}

	user := &User{}
	if err := json.Unmarshal(userBytes, user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to user struct: %v", err)
	}

	return user, nil
}

func (su *SupabaseRepo) CreateUser(ctx context.Context, user *User) (interface{}, error) {
	signed := types.SignupRequest{
		Email:    user.Email,
		Password: user.Password,
		Data: map[string]interface{}{
			"fullname":     user.FullName,
			"username":     user.Username,
			"phone_number": user.PhoneNumber,
		},
	}

	res, err := withContext(ctx, func() (*types.SignupResponse, error) {
		return su.supabaseClient.Auth.Signup(signed)
	})
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(strings.ToLower(errMsg), "already registered") {
			return nil, fmt.Errorf("email already in use")
		}
		if strings.Contains(errMsg, "null value in column") {
			return nil, fmt.Errorf("required field is missing")
		}
		if strings.Contains(errMsg, "unique constraint") {
			return nil, fmt.Errorf("user already exists")
		}
		if strings.Contains(errMsg, "invalid input syntax") {
			return nil, fmt.Errorf("invalid input format")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return res, nil
}

func (su *SupabaseRepo) AuthenticateUser(ctx context.Context, email, password string) (interface{}, error) {
	resp, err := withContext(ctx, func() (*types.TokenResponse, error) {
		return su.supabaseClient.Auth.SignInWithEmailPassword(email, password)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate user: %w", err)
	}
	return resp, nil
}

func (su *SupabaseRepo) RefreshToken(ctx context.Context, refreshToken string) (interface{}, error) {
	resp, err := withContext(ctx, func() (*types.TokenResponse, error) {
		return su.supabaseClient.Auth.RefreshToken(refreshToken)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return resp, nil
}

func (su *SupabaseRepo) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("invalid UUID")
	}
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	raw, _, err := execute(ctx, client.From(ProfileTable).
		Select(profileColumns, "", false).
		Eq("id", id.String()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	users, err := decodeRows[User](raw)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	if len(users) > 1 {
		return nil, fmt.Errorf("multiple users found for ID %s", id)
	}
	return &users[0], nil
}

func (su *SupabaseRepo) ListUsers(ctx context.Context, offset, limit int) ([]*User, int, error) {
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	raw, count, err := execute(ctx, client.From(ProfileTable).
		Select(profileColumns, "exact", false).
		Order("created_at", descending()).
		Range(offset, offset+limit-1, "").
		Execute)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	users, err := decodeRows[*User](raw)
	if err != nil {
		return nil, 0, err
	}
	return users, int(count), nil
}

func (su *SupabaseRepo) UpdateUser(ctx context.Context, user map[string]interface{}, userid uuid.UUID) (*User, error) {
	if userid == uuid.Nil {
		return nil, fmt.Errorf("invalid UUID")
	}
	if len(user) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	client, err := su.clientFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}

	raw, _, err := execute(ctx, client.From(ProfileTable).
		Update(user, "representation", "").
		Eq("id", userid.String()).
		Execute)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	var rawUsers []map[string]interface{}
	if err := json.Unmarshal(raw, &rawUsers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal updated user: %v", err)
	}
	if len(rawUsers) == 0 {
		return nil, ErrNotFound
	}
	return ConvertToUser(rawUsers[0])
}

func (su *SupabaseRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("no valid UUID provided")
	}
	client, err := su.clientFor(ctx)
	if err != nil {
		return fmt.Errorf("failed to create authenticated client: %w", err)
	}

	raw, _, err := execute(ctx, client.From(ProfileTable).
		Delete("representation", "").
		Eq("id", id.String()).
		Execute)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	var rawUsers []map[string]interface{}
	if err := json.Unmarshal(raw, &rawUsers); err != nil {
		return fmt.Errorf("failed to unmarshal deleted user data: %v", err)
	}
	if len(rawUsers) == 0 {
		return ErrNotFound
	}
	return nil
}
