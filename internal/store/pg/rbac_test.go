package pg

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"datavault.org/internal/auth"
)

var fixedTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// idSliceConverter lets []int64 batch arguments through the mock the same way
// the pgx driver binds them in production; everything else takes the default
// conversion.
type idSliceConverter struct{}

func (idSliceConverter) ConvertValue(v any) (driver.Value, error) {
	if ids, ok := v.([]int64); ok {
		return ids, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(idSliceConverter{}))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestPermissionsForUserDeduplicates(t *testing.T) {
	store, mock := newMockStore(t)

	// DISTINCT collapses the duplicate grant of datasets.read via two groups;
	// the driver therefore sees each permission once.
	rows := sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).
		AddRow(1, "datasets.read", fixedTime, fixedTime).
		AddRow(2, "datasets.create", fixedTime, fixedTime)
	mock.ExpectQuery("select distinct p.id, p.name").WithArgs(int64(42)).WillReturnRows(rows)

	perms, err := store.PermissionsForUser(context.Background(), 42)
	if err != nil {
		t.Fatalf("PermissionsForUser: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("expected 2 permissions, got %d", len(perms))
	}
	if perms[0].Name != "datasets.read" || perms[1].Name != "datasets.create" {
		t.Fatalf("unexpected permissions: %+v", perms)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPermissionsForUserNoGroupsYieldsEmptySet(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select distinct p.id, p.name").WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}))

	perms, err := store.PermissionsForUser(context.Background(), 9)
	if err != nil {
		t.Fatalf("PermissionsForUser: %v", err)
	}
	if perms == nil || len(perms) != 0 {
		t.Fatalf("expected empty non-nil set, got %v", perms)
	}
}

func groupRowColumns(includePermissions bool) []string {
	cols := []string{"user_id", "group_id", "group_name", "group_created_at", "group_updated_at"}
	if includePermissions {
		cols = append(cols, "perm_id", "perm_name", "perm_created_at", "perm_updated_at")
	}
	return cols
}

func TestGroupsForUsersMergesPermissionFanOut(t *testing.T) {
	store, mock := newMockStore(t)

	// User 42 in groups 1 and 2. Group 2 grants two permissions, so the join
	// fans its row out twice; the accumulator must collapse it to one group
	// with both permissions merged in.
	rows := sqlmock.NewRows(groupRowColumns(true)).
		AddRow(42, 1, "readers", fixedTime, fixedTime, 1, "datasets.read", fixedTime, fixedTime).
		AddRow(42, 2, "editors", fixedTime, fixedTime, 1, "datasets.read", fixedTime, fixedTime).
		AddRow(42, 2, "editors", fixedTime, fixedTime, 2, "datasets.create", fixedTime, fixedTime)
	mock.ExpectQuery("left join groups_permissions gp").WithArgs([]int64{42}).WillReturnRows(rows)

	out, err := store.GroupsForUsers(context.Background(), []int64{42}, true)
	if err != nil {
		t.Fatalf("GroupsForUsers: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(out))
	}
	groups := out[0].Groups
	if len(groups) != 2 {
		t.Fatalf("expected 2 deduplicated groups, got %d", len(groups))
	}
	if groups[0].Name != "readers" || len(groups[0].Permissions) != 1 {
		t.Fatalf("unexpected first group: %+v", groups[0])
	}
	if groups[1].Name != "editors" || len(groups[1].Permissions) != 2 {
		t.Fatalf("expected editors with 2 merged permissions, got %+v", groups[1])
	}
}

func TestGroupsForUsersPreservesInputOrderWithEmptyEntries(t *testing.T) {
	store, mock := newMockStore(t)

	// User 7 exists but has no memberships: the left join pads with nulls.
	// User 99 has no row at all. Both must still appear, in input order.
	rows := sqlmock.NewRows(groupRowColumns(false)).
		AddRow(7, nil, nil, nil, nil).
		AddRow(42, 1, "readers", fixedTime, fixedTime)
	mock.ExpectQuery("left join groups g").WithArgs([]int64{99, 42, 7}).WillReturnRows(rows)

	out, err := store.GroupsForUsers(context.Background(), []int64{99, 42, 7}, false)
	if err != nil {
		t.Fatalf("GroupsForUsers: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out))
	}
	wantOrder := []int64{99, 42, 7}
	for i, want := range wantOrder {
		if out[i].UserID != want {
			t.Fatalf("position %d: expected user %d, got %d", i, want, out[i].UserID)
		}
	}
	if len(out[0].Groups) != 0 || len(out[2].Groups) != 0 {
		t.Fatalf("expected empty lists for users 99 and 7, got %+v", out)
	}
	if len(out[1].Groups) != 1 || out[1].Groups[0].Name != "readers" {
		t.Fatalf("unexpected groups for user 42: %+v", out[1].Groups)
	}
}

// Duplicate membership rows must collapse identically whether or not the
// permission fan-out columns are selected; the single-user and batched paths
// share deduplication semantics.
func TestGroupsForUsersDedupParityAcrossModes(t *testing.T) {
	makeOut := func(includePermissions bool) []auth.UserGroups {
		store, mock := newMockStore(t)
		var rows *sqlmock.Rows
		if includePermissions {
			rows = sqlmock.NewRows(groupRowColumns(true)).
				AddRow(42, 2, "editors", fixedTime, fixedTime, 1, "datasets.read", fixedTime, fixedTime).
				AddRow(42, 2, "editors", fixedTime, fixedTime, 2, "datasets.create", fixedTime, fixedTime).
				AddRow(42, 1, "readers", fixedTime, fixedTime, 1, "datasets.read", fixedTime, fixedTime)
			mock.ExpectQuery("left join groups_permissions gp").WithArgs([]int64{42}).WillReturnRows(rows)
		} else {
			rows = sqlmock.NewRows(groupRowColumns(false)).
				AddRow(42, 2, "editors", fixedTime, fixedTime).
				AddRow(42, 2, "editors", fixedTime, fixedTime).
				AddRow(42, 1, "readers", fixedTime, fixedTime)
			mock.ExpectQuery("left join groups g").WithArgs([]int64{42}).WillReturnRows(rows)
		}
		out, err := store.GroupsForUsers(context.Background(), []int64{42}, includePermissions)
		if err != nil {
			t.Fatalf("GroupsForUsers(include=%t): %v", includePermissions, err)
		}
		return out
	}

	with := makeOut(true)
	without := makeOut(false)

	if len(with) != 1 || len(without) != 1 {
		t.Fatalf("expected single entries, got %d and %d", len(with), len(without))
	}
	gw, gwo := with[0].Groups, without[0].Groups
	if len(gw) != len(gwo) {
		t.Fatalf("dedup parity broken: %d groups with permissions, %d without", len(gw), len(gwo))
	}
	for i := range gw {
		if gw[i].ID != gwo[i].ID || gw[i].Name != gwo[i].Name {
			t.Fatalf("group order parity broken at %d: %+v vs %+v", i, gw[i], gwo[i])
		}
	}
}

func TestGroupsForUsersEmptyInput(t *testing.T) {
	store, _ := newMockStore(t)
	out, err := store.GroupsForUsers(context.Background(), nil, true)
	if err != nil {
		t.Fatalf("GroupsForUsers: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no entries, got %d", len(out))
	}
}

func TestEnsurePermissionsIsIdempotent(t *testing.T) {
	store, mock := newMockStore(t)

	for range []int{0, 1} {
		mock.ExpectExec("insert into permissions").
			WithArgs("datasets.read").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("insert into permissions").
			WithArgs("users.read").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	names := []string{"datasets.read", "users.read"}
	if err := store.EnsurePermissions(context.Background(), names); err != nil {
		t.Fatalf("EnsurePermissions: %v", err)
	}
	// second run hits only conflicts and still succeeds
	if err := store.EnsurePermissions(context.Background(), names); err != nil {
		t.Fatalf("EnsurePermissions rerun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
