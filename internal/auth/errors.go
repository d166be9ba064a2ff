package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("auth: not found")
	// ErrConflict indicates a uniqueness violation (duplicate username,
	// duplicate membership pair, and so on).
	ErrConflict = errors.New("auth: already exists")
	// ErrInvalidInput indicates the caller supplied unusable arguments.
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrUnauthorized indicates no credential was presented.
	ErrUnauthorized = errors.New("auth: no credential presented")
	// ErrInvalidCredentials indicates a failed username/password login.
	// Deliberately carries no detail about which half was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUserNotActive indicates a valid credential for a deactivated account.
	ErrUserNotActive = errors.New("auth: user is not active")
	// ErrPermissionDenied indicates the resolved permission set lacks the
	// permission required by the route.
	ErrPermissionDenied = errors.New("auth: permission denied")
)

// ErrInvalidToken is the umbrella for every token decode failure. The
// variants below all match it under errors.Is, so callers that only care
// about "reject with 401" can test the umbrella alone.
var (
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrTokenSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
)
