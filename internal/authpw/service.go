// Package authpw provides email/password sign-in for dashboard administrators.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"flames/api/internal/store"
	"flames/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrMissingFields      = errors.New("email and password are required")
)

// Service provides email/password authentication
type Service struct {
	store AdminStore
	cost  int
}

// AdminStore defines the storage interface for auth
type AdminStore interface {
	GetAdminByEmail(ctx context.Context, email string) (store.AdminUser, error)
	UpsertAdmin(ctx context.Context, user store.AdminUser) (store.AdminUser, error)
}

// NewService creates a new auth service
func NewService(store AdminStore) *Service {
	return &Service{
		store: store,
		cost:  bcrypt.DefaultCost,
	}
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates an account. Whether the account holds the admin claim
// is left to the caller.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.AdminUser, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return store.AdminUser{}, ErrMissingFields
	}

	user, err := s.store.GetAdminByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		// Burn comparable time so unknown emails are not distinguishable.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3ZJ6q8yQ5r6xkGc5W4ZrM2e"), []byte(req.Password))
		return store.AdminUser{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.AdminUser{}, fmt.Errorf("lookup admin: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.AdminUser{}, ErrInvalidCredentials
	}
	return user, nil
}

// GrantRequest describes an operator granting the admin claim.
type GrantRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// Grant creates or updates an account and sets its admin claim.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (store.AdminUser, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return store.AdminUser{}, ErrMissingFields
	}
	if len(req.Password) < 8 {
		return store.AdminUser{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.AdminUser{}, fmt.Errorf("hash password: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = email
	}

	user, err := s.store.UpsertAdmin(ctx, store.AdminUser{
		ID:           util.NewID("adm"),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Admin:        true,
	})
	if err != nil {
		return store.AdminUser{}, fmt.Errorf("grant admin: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
