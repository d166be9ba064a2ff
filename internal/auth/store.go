package auth

import "context"

// Store describes the persistence operations the auth core depends on. The
// core never reaches past this interface; the postgres implementation lives
// in internal/store/pg.
type Store interface {
	// GetUserByID returns ErrNotFound when no user exists with the id.
	GetUserByID(ctx context.Context, id int64) (User, error)
	// GetUserByUsername returns ErrNotFound when no user has the username.
	GetUserByUsername(ctx context.Context, username string) (User, error)
	// PermissionsForUser resolves the deduplicated effective permission set
	// of one user through its group memberships. A user with no groups gets
	// an empty slice, not an error.
	PermissionsForUser(ctx context.Context, userID int64) ([]Permission, error)
	// GroupsForUsers resolves group memberships for many users in one query.
	// The result has exactly one entry per requested id, in the input order,
	// with an empty group list for ids with no memberships. When
	// includePermissions is set, each group carries its permission list.
	GroupsForUsers(ctx context.Context, userIDs []int64, includePermissions bool) ([]UserGroups, error)
}

// UserUpdate carries the optional fields of a user update; nil means unchanged.
type UserUpdate struct {
	Nickname       *string
	AvatarURI      *string
	HashedPassword *string
}

// UsersFilter narrows AdminStore.ListUsers; zero values mean "no filter".
type UsersFilter struct {
	Username string
	Active   *bool
	Skip     int
	Limit    int
}

// AdminStore extends Store with the management surface used by the admin
// handlers. The auth core itself never needs these.
type AdminStore interface {
	Store

	CreateUser(ctx context.Context, username, hashedPassword, nickname, avatarURI string) (User, error)
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) (User, error)
	SetUserActive(ctx context.Context, id int64, active bool) error
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context, filter UsersFilter) ([]User, error)

	AddUserToGroup(ctx context.Context, userID, groupID int64) (UserGroup, error)
	RemoveUserFromGroup(ctx context.Context, userID, groupID int64) error

	CreateGroup(ctx context.Context, name string) (Group, error)
	GetGroup(ctx context.Context, id int64) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	DeleteGroup(ctx context.Context, id int64) error
	GrantPermission(ctx context.Context, groupID, permissionID int64) error
	RevokePermission(ctx context.Context, groupID, permissionID int64) error

	CreatePermission(ctx context.Context, name string) (Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	DeletePermission(ctx context.Context, id int64) error
}
