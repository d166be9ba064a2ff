package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service ties the credential verifier, token codec, and permission resolver
// together. All collaborators are injected at construction; the service holds
// no mutable state and is safe for concurrent use.
type Service struct {
	store    Store
	codec    *Codec
	tokenTTL time.Duration
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithTokenTTL overrides the default access token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	svc := &Service{
		store:    store,
		codec:    codec,
		tokenTTL: DefaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// TokenTTL returns the configured access token lifetime.
func (s *Service) TokenTTL() time.Duration { return s.tokenTTL }

// Login verifies a username/password pair and mints a fresh token carrying
// the user's current permission-id snapshot. Unknown usernames and wrong
// passwords are indistinguishable to the caller: both come back as
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, "", ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return User{}, "", fmt.Errorf("load user: %w", err)
	}

	if !VerifyPassword(user.HashedPassword, password) {
		return User{}, "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, "", ErrUserNotActive
	}

	perms, err := s.store.PermissionsForUser(ctx, user.ID)
	if err != nil {
		return User{}, "", fmt.Errorf("resolve permissions: %w", err)
	}
	ids := make([]int64, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}

	token, err := s.codec.Encode(user.ID, ids, s.now(), s.tokenTTL)
	if err != nil {
		return User{}, "", fmt.Errorf("mint token: %w", err)
	}
	return user, token, nil
}

// Authenticate decodes a raw token and loads the live user record. The token
// carries a stale permission snapshot by design; the live record is the
// authority on the active flag, so a deactivated account is rejected here no
// matter what its token says.
func (s *Service) Authenticate(ctx context.Context, token string) (User, Claims, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return User{}, Claims{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return User{}, Claims{}, fmt.Errorf("load user %d: %w", claims.Subject, err)
	}
	if !user.IsActive {
		return User{}, Claims{}, ErrUserNotActive
	}
	return user, claims, nil
}

// PermissionsFor resolves the effective permission set of a user: the
// deduplicated union of permissions granted by every group the user belongs
// to, read live rather than from any token snapshot.
func (s *Service) PermissionsFor(ctx context.Context, userID int64) ([]Permission, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.PermissionsForUser(ctx, userID)
}

// RequirePermission resolves the user's effective permission set and checks
// it for the named permission.
func (s *Service) RequirePermission(ctx context.Context, userID int64, permission string) error {
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return nil
	}
	perms, err := s.PermissionsFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve permissions: %w", err)
	}
	for _, p := range perms {
		if p.Name == permission {
			return nil
		}
	}
	return ErrPermissionDenied
}

// GroupsForUsers resolves group memberships for many users at once,
// preserving input order and emitting an empty list for ids with no groups.
// One query serves the whole batch; per-user fan-out is the N+1 shape this
// method exists to avoid.
func (s *Service) GroupsForUsers(ctx context.Context, userIDs []int64, includePermissions bool) ([]UserGroups, error) {
	if len(userIDs) == 0 {
		return []UserGroups{}, nil
	}
	for _, id := range userIDs {
		if id <= 0 {
			return nil, fmt.Errorf("%w: user ids must be positive", ErrInvalidInput)
		}
	}
	return s.store.GroupsForUsers(ctx, userIDs, includePermissions)
}
