package model

// Role names form an ordered lattice: each level inherits every permission
// of the levels below it.
const (
	RoleRegular   = "regular"
	RoleCashier   = "cashier"
	RoleManager   = "manager"
	RoleSuperuser = "superuser"
)

var roleRank = map[string]int{
	RoleRegular:   0,
	RoleCashier:   1,
	RoleManager:   2,
	RoleSuperuser: 3,
}

// ValidRole reports whether name is one of the four platform roles.
func ValidRole(name string) bool {
	_, ok := roleRank[name]
	return ok
}

// RoleAtLeast reports whether role has at least the clearance of min.
// Unknown roles never clear any level.
func RoleAtLeast(role, min string) bool {
	r, ok := roleRank[role]
	if !ok {
		return false
	}
	m, ok := roleRank[min]
	if !ok {
		return false
	}
	return r >= m
}
