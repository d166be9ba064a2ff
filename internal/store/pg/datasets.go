package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"datavault.org/internal/dataset"
)

var _ dataset.Service = (*Store)(nil)

const datasetColumns = `id, name, description, created_at, updated_at`

func scanDataset(row interface{ Scan(...any) error }) (dataset.Dataset, error) {
	var d dataset.Dataset
	err := row.Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (s *Store) CreateDataset(ctx context.Context, name, description string) (dataset.Dataset, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into datasets (name, description)
		values ($1, $2)
		returning `+datasetColumns+`
	`, name, description)
	d, err := scanDataset(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return dataset.Dataset{}, dataset.ErrConflict
		}
		return dataset.Dataset{}, err
	}
	return d, nil
}

func (s *Store) GetDataset(ctx context.Context, id int64) (dataset.Dataset, error) {
	d, err := scanDataset(s.db.QueryRowContext(ctx, `
		select `+datasetColumns+` from datasets where id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return dataset.Dataset{}, dataset.ErrNotFound
	}
	if err != nil {
		return dataset.Dataset{}, err
	}
	return d, nil
}

func (s *Store) ListDatasets(ctx context.Context, filter dataset.Filter) ([]dataset.Dataset, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	if filter.Name != "" {
		where = append(where, fmt.Sprintf("name = $%d", idx))
		args = append(args, filter.Name)
		idx++
	}
	query := `select ` + datasetColumns + ` from datasets`
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

	var datasets []dataset.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return datasets, nil
}

func (s *Store) UpdateDataset(ctx context.Context, id int64, upd dataset.Update) (dataset.Dataset, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", idx))
		args = append(args, *upd.Description)
		idx++
	}
	if len(setClauses) == 0 {
		return s.GetDataset(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	query := fmt.Sprintf(`
		update datasets set %s where id = $%d
		returning `+datasetColumns,
		strings.Join(setClauses, ", "), idx)
	args = append(args, id)

	d, err := scanDataset(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return dataset.Dataset{}, dataset.ErrNotFound
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return dataset.Dataset{}, dataset.ErrConflict
		}
		return dataset.Dataset{}, err
	}
	return d, nil
}

func (s *Store) DeleteDataset(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from datasets where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return dataset.ErrNotFound
	}
	return nil
}
