package auth

import (
	"fmt"
	"time"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is an identity record. The auth core reads it; only the activation
// handlers mutate it.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	Nickname       string    `json:"nickname"`
	AvatarURI      string    `json:"avatar_uri"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// String intentionally omits the password hash so User never leaks it into logs.
func (u User) String() string {
	return fmt.Sprintf("User(id=%d username=%s active=%t)", u.ID, u.Username, u.IsActive)
}

// Group is a named collection of permissions.
type Group struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission is a named capability, dot-namespaced ("datasets.create").
type Permission struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserGroup records a user's membership in a group.
type UserGroup struct {
	UserID    int64     `json:"user_id"`
	GroupID   int64     `json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupPermission links a group with a permission.
type GroupPermission struct {
	GroupID      int64 `json:"group_id"`
	PermissionID int64 `json:"permission_id"`
}

// UserGroups is one entry of a batched group resolution: the groups a single
// user belongs to, deduplicated, with permissions merged in when requested.
type UserGroups struct {
	UserID int64   `json:"user_id"`
	Groups []Group `json:"groups"`
}
