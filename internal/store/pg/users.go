package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"datavault.org/internal/auth"
)

var _ auth.AdminStore = (*Store)(nil)

const userColumns = `id, username, hashed_password, nickname, avatar_uri, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (auth.User, error) {
	var u auth.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.HashedPassword,
		&u.Nickname,
		&u.AvatarURI,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1
	`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where username = $1
	`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, username, hashedPassword, nickname, avatarURI string) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into users (username, hashed_password, nickname, avatar_uri, is_active)
		values ($1, $2, $3, $4, true)
		returning `+userColumns+`
	`, username, hashedPassword, nickname, avatarURI)
	u, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.User{}, auth.ErrConflict
		}
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, id int64, upd auth.UserUpdate) (auth.User, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Nickname != nil {
		setClauses = append(setClauses, fmt.Sprintf("nickname = $%d", idx))
		args = append(args, *upd.Nickname)
		idx++
	}
	if upd.AvatarURI != nil {
		setClauses = append(setClauses, fmt.Sprintf("avatar_uri = $%d", idx))
		args = append(args, *upd.AvatarURI)
		idx++
	}
	if upd.HashedPassword != nil {
		setClauses = append(setClauses, fmt.Sprintf("hashed_password = $%d", idx))
		args = append(args, *upd.HashedPassword)
		idx++
	}
	if len(setClauses) == 0 {
		return s.GetUserByID(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	query := fmt.Sprintf(`
		update users set %s where id = $%d
		returning `+userColumns,
		strings.Join(setClauses, ", "), idx)
	args = append(args, id)

	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return u, nil
}

// SetUserActive flips the activation flag. Deactivation takes effect on the
// next request that loads the live user record, regardless of outstanding
// tokens.
func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update users set is_active = $2, updated_at = now() where id = $1
	`, id, active)
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

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
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

func (s *Store) ListUsers(ctx context.Context, filter auth.UsersFilter) ([]auth.User, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	if filter.Username != "" {
		where = append(where, fmt.Sprintf("username = $%d", idx))
		args = append(args, filter.Username)
		idx++
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *filter.Active)
		idx++
	}
	query := `select ` + userColumns + ` from users`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" order by id offset $%d limit $%d", idx, idx+1)
	args = append(args, filter.Skip, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// AddUserToGroup records a membership; the pair is unique so a repeat insert
// maps to ErrConflict.
func (s *Store) AddUserToGroup(ctx context.Context, userID, groupID int64) (auth.UserGroup, error) {
	var ug auth.UserGroup
	err := s.db.QueryRowContext(ctx, `
		insert into users_groups (user_id, group_id)
		values ($1, $2)
		returning user_id, group_id, created_at
	`, userID, groupID).Scan(&ug.UserID, &ug.GroupID, &ug.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.UserGroup{}, auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.UserGroup{}, auth.ErrNotFound
			}
		}
		return auth.UserGroup{}, err
	}
	return ug, nil
}

func (s *Store) RemoveUserFromGroup(ctx context.Context, userID, groupID int64) error {
	res, err := s.db.ExecContext(ctx, `
		delete from users_groups where user_id = $1 and group_id = $2
	`, userID, groupID)
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
