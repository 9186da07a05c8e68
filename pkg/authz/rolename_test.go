package authz

import "testing"

func TestCanonicalRoleName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"manager", "manager"},
		{"org_manager", "manager"},
		{"ORG_MANAGER", "manager"},
		{"Org_Kadiv", "kadiv"},
		{"  org_kadiv  ", "kadiv"},
		{"org_org_admin", "org_admin"}, // only one prefix is stripped
		{"organizer", "organizer"},     // no underscore, no prefix to strip
		{"", ""},
	}

	for _, tt := range tests {
		if got := CanonicalRoleName(tt.in); got != tt.want {
			t.Errorf("CanonicalRoleName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSameRole(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"manager", "org_manager", true},
		{"org_manager", "manager", true},
		{"kadiv", "ORG_KADIV", true},
		{"manager", "kadiv", false},
		{"org_manager", "org_kadiv", false},
	}

	for _, tt := range tests {
		if got := SameRole(tt.a, tt.b); got != tt.want {
			t.Errorf("SameRole(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsSuperuserRole(t *testing.T) {
	for _, name := range []string{"admin", "administrator", "org_administrator", "Admin", "ADMINISTRATOR", "org_admin"} {
		if !IsSuperuserRole(name) {
			t.Errorf("expected %q to be a superuser role", name)
		}
	}
	for _, name := range []string{"manager", "org_manager", "editor", "admin_assistant", ""} {
		if IsSuperuserRole(name) {
			t.Errorf("expected %q not to be a superuser role", name)
		}
	}
}
