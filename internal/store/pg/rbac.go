package pg

import (
	"context"
	"database/sql"
	"errors"

	"datavault.org/internal/auth"
)

// PermissionsForUser computes the effective permission set: the DISTINCT
// union of permissions reachable through every group the user belongs to.
// A user with no memberships yields an empty slice.
func (s *Store) PermissionsForUser(ctx context.Context, userID int64) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.id, p.name, p.created_at, p.updated_at
		from users u
		inner join users_groups ug on ug.user_id = u.id
		inner join groups_permissions gp on gp.group_id = ug.group_id
		inner join permissions p on p.id = gp.permission_id
		where u.id = $1
		order by p.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []auth.Permission{}
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// GroupsForUsers resolves group memberships for a batch of users in a single
// left-joined query, avoiding a round-trip per user. The permission fan-out
// join repeats each group row once per granted permission, so rows are
// accumulated into an ordered map keyed by group id: repeats collapse, and
// their permissions merge into the already-seen group. Query-level DISTINCT
// cannot do this because the permission columns differ on every fanned-out
// row. Both include-permissions modes run through the same accumulator, so
// the deduplication semantics match the single-user form exactly.
func (s *Store) GroupsForUsers(ctx context.Context, userIDs []int64, includePermissions bool) ([]auth.UserGroups, error) {
	if len(userIDs) == 0 {
		return []auth.UserGroups{}, nil
	}

	query := `
		select u.id, g.id, g.name, g.created_at, g.updated_at
		from users u
		left join users_groups ug on ug.user_id = u.id
		left join groups g on g.id = ug.group_id
		where u.id = any($1)
		order by u.id, ug.created_at, g.id
	`
	if includePermissions {
		query = `
			select u.id, g.id, g.name, g.created_at, g.updated_at, p.id, p.name, p.created_at, p.updated_at
			from users u
			left join users_groups ug on ug.user_id = u.id
			left join groups g on g.id = ug.group_id
			left join groups_permissions gp on gp.group_id = g.id
			left join permissions p on p.id = gp.permission_id
			where u.id = any($1)
			order by u.id, ug.created_at, g.id, p.id
		`
	}

	rows, err := s.db.QueryContext(ctx, query, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type groupAcc struct {
		order     []int64
		groups    map[int64]*auth.Group
		permsSeen map[int64]map[int64]struct{}
	}
	acc := make(map[int64]*groupAcc, len(userIDs))

	for rows.Next() {
		var (
			userID       int64
			groupID      sql.NullInt64
			groupName    sql.NullString
			groupCreated sql.NullTime
			groupUpdated sql.NullTime
			permID       sql.NullInt64
			permName     sql.NullString
			permCreated  sql.NullTime
			permUpdated  sql.NullTime
		)
		dest := []any{&userID, &groupID, &groupName, &groupCreated, &groupUpdated}
		if includePermissions {
			dest = append(dest, &permID, &permName, &permCreated, &permUpdated)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		a, ok := acc[userID]
		if !ok {
			a = &groupAcc{
				groups:    map[int64]*auth.Group{},
				permsSeen: map[int64]map[int64]struct{}{},
			}
			acc[userID] = a
		}
		if !groupID.Valid {
			// Left-join padding for a user with no memberships.
			continue
		}

		g, ok := a.groups[groupID.Int64]
		if !ok {
			g = &auth.Group{
				ID:        groupID.Int64,
				Name:      groupName.String,
				CreatedAt: groupCreated.Time,
				UpdatedAt: groupUpdated.Time,
			}
			a.groups[groupID.Int64] = g
			a.order = append(a.order, groupID.Int64)
			a.permsSeen[groupID.Int64] = map[int64]struct{}{}
		}

		if includePermissions && permID.Valid {
			seen := a.permsSeen[groupID.Int64]
			if _, dup := seen[permID.Int64]; !dup {
				seen[permID.Int64] = struct{}{}
				g.Permissions = append(g.Permissions, auth.Permission{
					ID:        permID.Int64,
					Name:      permName.String,
					CreatedAt: permCreated.Time,
					UpdatedAt: permUpdated.Time,
				})
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Re-key by user id in the caller's order; ids with no rows at all still
	// produce an entry with an empty list.
	out := make([]auth.UserGroups, 0, len(userIDs))
	for _, id := range userIDs {
		entry := auth.UserGroups{UserID: id, Groups: []auth.Group{}}
		if a, ok := acc[id]; ok {
			for _, gid := range a.order {
				entry.Groups = append(entry.Groups, *a.groups[gid])
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// --- group catalog --------------------------------------------------------

const groupColumns = `id, name, created_at, updated_at`

func (s *Store) CreateGroup(ctx context.Context, name string) (auth.Group, error) {
	var g auth.Group
	err := s.db.QueryRowContext(ctx, `
		insert into groups (name)
		values ($1)
		returning `+groupColumns+`
	`, name).Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Group{}, auth.ErrConflict
		}
		return auth.Group{}, err
	}
	return g, nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (auth.Group, error) {
	var g auth.Group
	err := s.db.QueryRowContext(ctx, `
		select `+groupColumns+` from groups where id = $1
	`, id).Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Group{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Group{}, err
	}
	return g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]auth.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+groupColumns+` from groups order by id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []auth.Group
	for rows.Next() {
		var g auth.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from groups where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// GrantPermission links a permission to a group; the pair is unique.
func (s *Store) GrantPermission(ctx context.Context, groupID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx, `
		insert into groups_permissions (group_id, permission_id)
		values ($1, $2)
	`, groupID, permissionID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) RevokePermission(ctx context.Context, groupID, permissionID int64) error {
	res, err := s.db.ExecContext(ctx, `
		delete from groups_permissions where group_id = $1 and permission_id = $2
	`, groupID, permissionID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// --- permission catalog ---------------------------------------------------

const permissionColumns = `id, name, created_at, updated_at`

func (s *Store) CreatePermission(ctx context.Context, name string) (auth.Permission, error) {
	var p auth.Permission
	err := s.db.QueryRowContext(ctx, `
		insert into permissions (name)
		values ($1)
		returning `+permissionColumns+`
	`, name).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Permission{}, auth.ErrConflict
		}
		return auth.Permission{}, err
	}
	return p, nil
}

func (s *Store) GetPermission(ctx context.Context, id int64) (auth.Permission, error) {
	var p auth.Permission
	err := s.db.QueryRowContext(ctx, `
		select `+permissionColumns+` from permissions where id = $1
	`, id).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Permission{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Permission{}, err
	}
	return p, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+permissionColumns+` from permissions order by id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) DeletePermission(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// EnsurePermissions inserts catalog entries that do not exist yet; the API
// binary runs it at startup so the builtin catalog survives manual edits.
func (s *Store) EnsurePermissions(ctx context.Context, names []string) error {
	for _, name := range names {
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (name)
			values ($1)
			on conflict (name) do nothing
		`, name); err != nil {
			return err
		}
	}
	return nil
}
