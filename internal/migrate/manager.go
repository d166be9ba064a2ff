package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

const defaultHistoryTable = "schema_history"

// History ledger kinds. Migrations and seeds share one table so a single
// query answers "what has this database seen".
const (
	kindMigration = "migration"
	kindSeed      = "seed"
)

// Runner applies SQL migration and seed files from disk and records them in
// a history table keyed by (kind, name). Files run in lexical order; each
// file runs inside its own transaction.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
	historyTable  string
}

// Option configures Runner.
type Option func(*Runner)

// WithHistoryTable overrides the default history table name.
func WithHistoryTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.historyTable = name
		}
	}
}

// New constructs a Runner over the given pool and directories.
func New(db *sql.DB, migrationsDir, seedsDir string, opts ...Option) *Runner {
	r := &Runner{
		db:            db,
		migrationsDir: migrationsDir,
		seedsDir:      seedsDir,
		historyTable:  defaultHistoryTable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Up applies every pending .up.sql migration.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	seen, err := r.applied(ctx, kindMigration)
	if err != nil {
		return err
	}
	files, err := sqlFiles(r.migrationsDir, ".up.sql")
	if err != nil {
		return err
	}
	for _, f := range files {
		if seen[f.name] {
			continue
		}
		if err := r.runFile(ctx, f.path); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
		if err := r.record(ctx, kindMigration, f.name); err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back the most recently applied migration via its .down.sql
// counterpart.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	history, err := r.ordered(ctx, kindMigration)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	downPath := strings.TrimSuffix(filepath.Join(r.migrationsDir, last), ".up.sql") + ".down.sql"
	if _, err := os.Stat(downPath); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := r.runFile(ctx, downPath); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	return r.forget(ctx, kindMigration, last)
}

// Seed applies every pending seed file. Seeds are recorded like migrations,
// so rerunning Seed is a no-op; the files themselves are also written to be
// idempotent as a second line of defense.
func (r *Runner) Seed(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	seen, err := r.applied(ctx, kindSeed)
	if err != nil {
		return err
	}
	files, err := sqlFiles(r.seedsDir, ".sql")
	if err != nil {
		return err
	}
	for _, f := range files {
		if seen[f.name] {
			continue
		}
		if err := r.runFile(ctx, f.path); err != nil {
			return fmt.Errorf("apply seed %s: %w", f.name, err)
		}
		if err := r.record(ctx, kindSeed, f.name); err != nil {
			return err
		}
	}
	return nil
}

// Applied returns migration names in the order they were applied.
func (r *Runner) Applied(ctx context.Context) ([]string, error) {
	if err := r.ensureHistory(ctx); err != nil {
		return nil, err
	}
	return r.ordered(ctx, kindMigration)
}

func (r *Runner) ensureHistory(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		create table if not exists %s (
			kind text not null,
			name text not null,
			applied_at timestamptz not null default now(),
			primary key (kind, name)
		)`, r.historyTable)
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *Runner) applied(ctx context.Context, kind string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s where kind = $1`, r.historyTable), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		seen[name] = true
	}
	return seen, rows.Err()
}

func (r *Runner) ordered(ctx context.Context, kind string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s where kind = $1 order by applied_at asc, name asc`, r.historyTable), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *Runner) record(ctx context.Context, kind, name string) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s (kind, name) values ($1, $2)`, r.historyTable), kind, name)
	return err
}

func (r *Runner) forget(ctx context.Context, kind, name string) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where kind = $1 and name = $2`, r.historyTable), kind, name)
	return err
}

// runFile executes every statement of one SQL file in a single transaction.
func (r *Runner) runFile(ctx context.Context, path string) error {
	script, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(script)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type sqlFile struct {
	name string
	path string
}

// sqlFiles collects files under dir with the suffix, sorted by name so the
// numeric prefix convention (0001_..., 0002_...) dictates execution order.
func sqlFiles(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		files = append(files, sqlFile{name: d.Name(), path: path})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

// splitStatements splits a script on semicolons while respecting single-quoted
// strings and dollar-quoted bodies ($$...$$ or $tag$...$tag$), so trigger and
// function definitions survive the split. Semicolons are dropped; postgres
// does not need them on single statements.
func splitStatements(script string) []string {
	var (
		stmts     []string
		current   strings.Builder
		inQuote   bool
		dollarTag string
		openedAt  int
	)
	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if dollarTag != "" {
			current.WriteRune(ch)
			if ch == '$' && current.Len() > openedAt && strings.HasSuffix(current.String(), dollarTag) {
				dollarTag = ""
			}
			continue
		}

		switch {
		case inQuote:
			current.WriteRune(ch)
			if ch == '\'' {
				inQuote = false
			}
		case ch == '\'':
			inQuote = true
			current.WriteRune(ch)
		case ch == '$':
			if tag, ok := dollarQuoteAt(runes, i); ok {
				current.WriteString(tag)
				dollarTag = tag
				openedAt = current.Len()
				i += len([]rune(tag)) - 1
				continue
			}
			current.WriteRune(ch)
		case ch == ';':
			stmts = append(stmts, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}

// dollarQuoteAt reports the $tag$ opener starting at position i, if any.
func dollarQuoteAt(runes []rune, i int) (string, bool) {
	j := i + 1
	for j < len(runes) && (runes[j] == '_' || unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
		j++
	}
	if j < len(runes) && runes[j] == '$' {
		return string(runes[i : j+1]), true
	}
	return "", false
}
