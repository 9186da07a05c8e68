package authz

import "strings"

// Two role-naming eras coexist in the database: bare names (manager,
// kadiv) and organizationally prefixed ones (org_manager, org_kadiv).
// They denote the same role identity but were never unified, and
// requirement lists reference either spelling. Every role-identity
// comparison must go through CanonicalRoleName or SameRole; comparing raw
// names resurfaces the historical mismatch where org_kadiv users failed
// checks that listed kadiv.

const orgPrefix = "org_"

// superuserRoles are the role names granted an unconditional bypass.
// Derivation happens once per resolution (GrantSet.Superuser); no other
// call site may match these spellings directly.
var superuserRoles = map[string]struct{}{
	"admin":         {},
	"administrator": {},
}

// CanonicalRoleName lowercases a role name and strips a single leading
// org_ prefix.
func CanonicalRoleName(name string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), orgPrefix)
}

// SameRole reports whether two role names denote the same role identity
func SameRole(a, b string) bool {
	return CanonicalRoleName(a) == CanonicalRoleName(b)
}

// IsSuperuserRole reports whether a role name grants the superuser bypass:
// admin, administrator, or org_administrator, case-insensitively.
func IsSuperuserRole(name string) bool {
	_, ok := superuserRoles[CanonicalRoleName(name)]
	return ok
}
