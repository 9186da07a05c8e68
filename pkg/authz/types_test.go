package authz

import "testing"

func TestParseToken(t *testing.T) {
	tests := []struct {
		in   string
		want TokenKind
	}{
		{"documents.view", KindPermission},
		{"pdf.download", KindPermission},
		{"DOCUMENT_EDIT", KindCapability},
		{"DASHBOARD_VIEW", KindCapability},
		{"ADMIN", KindCapability},
		{"Documents.View", KindUnknown}, // mixed case with a dot
		{"documents_view", KindUnknown}, // lowercase without a dot
		{"DOCUMENT.EDIT", KindUnknown},  // uppercase with a dot
		{"", KindUnknown},
	}

	for _, tt := range tests {
		if got := ParseToken(tt.in); got.Kind != tt.want {
			t.Errorf("ParseToken(%q).Kind = %v, want %v", tt.in, got.Kind, tt.want)
		}
	}
}

func newGrantSet(perms, caps []string) *GrantSet {
	g := &GrantSet{
		Permissions:  make(map[string]struct{}),
		Capabilities: make(map[string]struct{}),
	}
	for _, p := range perms {
		g.Permissions[p] = struct{}{}
	}
	for _, c := range caps {
		g.Capabilities[c] = struct{}{}
	}
	return g
}

func TestGrantSet_HasToken_DirectLookup(t *testing.T) {
	g := newGrantSet([]string{"documents.view"}, []string{"DASHBOARD_VIEW"})

	if !g.HasToken(ParseToken("documents.view")) {
		t.Error("expected permission requirement to match permission grant")
	}
	if !g.HasToken(ParseToken("DASHBOARD_VIEW")) {
		t.Error("expected capability requirement to match capability grant")
	}
	if g.HasToken(ParseToken("documents.delete")) {
		t.Error("expected unheld permission to be denied")
	}
}

func TestGrantSet_HasToken_Bridge(t *testing.T) {
	// User holds only the capability spelling; a requirement written as a
	// permission must still pass through the bridge.
	g := newGrantSet(nil, []string{"DOCUMENT_EDIT"})
	if !g.HasToken(ParseToken("documents.update")) {
		t.Error("expected permission requirement satisfied by bridged capability")
	}

	// And the reverse direction.
	g = newGrantSet([]string{"pdf.download"}, nil)
	if !g.HasToken(ParseToken("DOCUMENT_DOWNLOAD")) {
		t.Error("expected capability requirement satisfied by bridged permission")
	}

	// Unbridged names do not cross vocabularies.
	g = newGrantSet(nil, []string{"SOME_UNBRIDGED_THING"})
	if g.HasToken(ParseToken("some.unbridged")) {
		t.Error("expected unbridged requirement to be denied")
	}
}

func TestGrantSet_HasToken_UnknownFailsClosed(t *testing.T) {
	g := newGrantSet([]string{"documents.view"}, []string{"DOCUMENT_VIEW"})

	if g.HasToken(ParseToken("Documents_View")) {
		t.Error("expected unknown-shaped requirement to be denied")
	}
	if g.HasToken(Token{Kind: KindUnknown, Name: "documents.view"}) {
		t.Error("expected KindUnknown to deny even when the name is held")
	}
}

func TestGrantSet_SuperuserBypassesEverything(t *testing.T) {
	g := newGrantSet(nil, nil)
	g.Superuser = true

	for _, req := range []string{"documents.delete", "ADMIN_ACCESS", "never.granted"} {
		if !g.HasToken(ParseToken(req)) {
			t.Errorf("expected superuser to satisfy %q", req)
		}
	}
	if g.HasToken(Token{Kind: KindUnknown, Name: "???"}) != true {
		t.Error("superuser bypass applies before vocabulary dispatch")
	}
}

func TestGrantSet_HasRole_Canonicalized(t *testing.T) {
	g := &GrantSet{Roles: []RoleGrant{{Name: "org_kadiv", Level: 3}}}

	if !g.HasRole("kadiv") {
		t.Error("expected bare spelling to match org_-prefixed assignment")
	}
	if !g.HasRole("ORG_KADIV") {
		t.Error("expected case-insensitive match")
	}
	if g.HasRole("manager") {
		t.Error("expected unrelated role not to match")
	}
}

func TestBridgeIsBijective(t *testing.T) {
	for _, e := range Bridge() {
		cap, ok := BridgeToCapability(e.Permission)
		if !ok || cap != e.Capability {
			t.Errorf("BridgeToCapability(%q) = %q, %v", e.Permission, cap, ok)
		}
		perm, ok := BridgeToPermission(e.Capability)
		if !ok || perm != e.Permission {
			t.Errorf("BridgeToPermission(%q) = %q, %v", e.Capability, perm, ok)
		}
	}
}
