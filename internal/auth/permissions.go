package auth

// Builtin permission names. Names are dot-namespaced: "<resource>.<action>".
const (
	PermDatasetsRead   = "datasets.read"
	PermDatasetsCreate = "datasets.create"
	PermDatasetsUpdate = "datasets.update"
	PermDatasetsDelete = "datasets.delete"

	PermUsersRead   = "users.read"
	PermUsersCreate = "users.create"
	PermUsersUpdate = "users.update"
	PermUsersDelete = "users.delete"

	PermGroupsRead   = "groups.read"
	PermGroupsManage = "groups.manage"

	PermPermissionsRead   = "permissions.read"
	PermPermissionsManage = "permissions.manage"
)

// BuiltinPermissionNames is the catalog seeded by cmd/migrate.
var BuiltinPermissionNames = []string{
	PermDatasetsRead,
	PermDatasetsCreate,
	PermDatasetsUpdate,
	PermDatasetsDelete,
	PermUsersRead,
	PermUsersCreate,
	PermUsersUpdate,
	PermUsersDelete,
	PermGroupsRead,
	PermGroupsManage,
	PermPermissionsRead,
	PermPermissionsManage,
}
