package documents

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docuvault/docuvault/pkg/authz"
	"github.com/docuvault/docuvault/pkg/identity"
	"github.com/docuvault/docuvault/pkg/observability"
)

func testPolicy() *Policy {
	return NewPolicy(observability.NewLogger(observability.ErrorLevel, io.Discard))
}

func plainUser(id int64) *identity.User {
	return &identity.User{ID: id, Username: "user", IsActive: true}
}

func groupedUser(id, groupID int64, groupName string) *identity.User {
	u := plainUser(id)
	u.GroupID = &groupID
	u.Group = &identity.Group{ID: groupID, Name: groupName}
	return u
}

func emptyGrants() *authz.GrantSet {
	return &authz.GrantSet{
		Permissions:  map[string]struct{}{},
		Capabilities: map[string]struct{}{},
	}
}

func grantsWithRole(name string) *authz.GrantSet {
	g := emptyGrants()
	g.Roles = []authz.RoleGrant{{Name: name}}
	return g
}

func lockedDocument() *Document {
	return &Document{ID: 1, Title: "Quarterly Report", Status: StatusDraft, CreatedBy: 100}
}

// Each disjunct of the view policy must grant independently: starting
// from a fully locked document, flipping exactly one condition allows.
func TestPolicy_CanView_EachDisjunctIndependently(t *testing.T) {
	policy := testPolicy()
	user := plainUser(1)
	grants := emptyGrants()

	base := lockedDocument()
	assert.False(t, policy.CanView(user, grants, base).Allowed, "locked document must deny")

	public := lockedDocument()
	public.IsPublic = true
	v := policy.CanView(user, grants, public)
	assert.True(t, v.Allowed)
	assert.Equal(t, ReasonPublic, v.Reason)

	owned := lockedDocument()
	owned.CreatedBy = user.ID
	v = policy.CanView(user, grants, owned)
	assert.True(t, v.Allowed)
	assert.Equal(t, ReasonOwner, v.Reason)

	super := emptyGrants()
	super.Superuser = true
	v = policy.CanView(user, super, lockedDocument())
	assert.True(t, v.Allowed)
	assert.Equal(t, ReasonSuperuser, v.Reason)

	ruled := lockedDocument()
	ruled.AccessRules = AccessRules{{Kind: RuleRoleName, Value: "editor"}}
	v = policy.CanView(user, grantsWithRole("editor"), ruled)
	assert.True(t, v.Allowed)
	assert.Equal(t, ReasonAccessRule, v.Reason)

	published := lockedDocument()
	published.Status = StatusPublished
	v = policy.CanView(user, grants, published)
	assert.True(t, v.Allowed)
	assert.Equal(t, ReasonPublished, v.Reason)
}

func TestPolicy_CanView_GroupRules(t *testing.T) {
	policy := testPolicy()
	grants := emptyGrants()

	doc := lockedDocument()
	doc.AccessRules = AccessRules{{Kind: RuleGroupName, Value: "Legal"}}

	legal := groupedUser(1, 10, "Legal")
	finance := groupedUser(2, 20, "Finance")

	assert.True(t, policy.CanView(legal, grants, doc).Allowed)
	assert.False(t, policy.CanView(finance, grants, doc).Allowed)

	// Publishing opens the document to both.
	doc.Status = StatusPublished
	assert.True(t, policy.CanView(legal, grants, doc).Allowed)
	assert.True(t, policy.CanView(finance, grants, doc).Allowed)
}

func TestPolicy_CanView_GroupIDRule(t *testing.T) {
	policy := testPolicy()
	grants := emptyGrants()

	doc := lockedDocument()
	doc.AccessRules = AccessRules{{Kind: RuleGroupID, Value: "10"}}

	assert.True(t, policy.CanView(groupedUser(1, 10, "Legal"), grants, doc).Allowed)
	assert.False(t, policy.CanView(groupedUser(2, 11, "Legal"), grants, doc).Allowed)
	assert.False(t, policy.CanView(plainUser(3), grants, doc).Allowed, "user with no group")
}

func TestPolicy_CanView_RoleRuleNormalized(t *testing.T) {
	policy := testPolicy()

	doc := lockedDocument()
	doc.AccessRules = AccessRules{{Kind: RuleRoleName, Value: "kadiv"}}

	// The org_-prefixed spelling matches the bare requirement and vice versa.
	assert.True(t, policy.CanView(plainUser(1), grantsWithRole("org_kadiv"), doc).Allowed)

	doc.AccessRules = AccessRules{{Kind: RuleRoleName, Value: "org_kadiv"}}
	assert.True(t, policy.CanView(plainUser(1), grantsWithRole("kadiv"), doc).Allowed)
}

func TestPolicy_CanView_LegacyAnyRule(t *testing.T) {
	policy := testPolicy()

	doc := lockedDocument()
	doc.AccessRules = AccessRules{{Kind: RuleAny, Value: "Legal"}}

	// A legacy entry matches whichever space it happens to hit.
	assert.True(t, policy.CanView(groupedUser(1, 10, "Legal"), emptyGrants(), doc).Allowed)
	assert.True(t, policy.CanView(plainUser(2), grantsWithRole("Legal"), doc).Allowed)
	assert.False(t, policy.CanView(groupedUser(3, 20, "Finance"), emptyGrants(), doc).Allowed)

	// A tagged group_name entry no longer matches a role of the same name.
	doc.AccessRules = AccessRules{{Kind: RuleGroupName, Value: "Legal"}}
	assert.False(t, policy.CanView(plainUser(2), grantsWithRole("Legal"), doc).Allowed)
}

func TestPolicy_CanDownload_LayersOnView(t *testing.T) {
	policy := testPolicy()
	user := plainUser(1)

	doc := lockedDocument()
	doc.IsPublic = true

	// Viewable but no download grant.
	v := policy.CanDownload(user, emptyGrants(), doc)
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonMissingGrant, v.Reason)

	// Either vocabulary spelling of the grant suffices.
	withPerm := emptyGrants()
	withPerm.Permissions["pdf.download"] = struct{}{}
	assert.True(t, policy.CanDownload(user, withPerm, doc).Allowed)

	withCap := emptyGrants()
	withCap.Capabilities["DOCUMENT_DOWNLOAD"] = struct{}{}
	assert.True(t, policy.CanDownload(user, withCap, doc).Allowed)

	// Not viewable at all: the view denial wins over the grant.
	hidden := lockedDocument()
	v = policy.CanDownload(user, withPerm, hidden)
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonDenied, v.Reason)
}

func TestPolicy_CanPrintAndCopy(t *testing.T) {
	policy := testPolicy()
	user := plainUser(1)

	doc := lockedDocument()
	doc.IsPublic = true

	printGrants := emptyGrants()
	printGrants.Permissions["pdf.print"] = struct{}{}
	assert.True(t, policy.CanPrint(user, printGrants, doc).Allowed)
	assert.False(t, policy.CanCopy(user, printGrants, doc).Allowed, "print grant does not imply copy")

	copyGrants := emptyGrants()
	copyGrants.Capabilities["DOCUMENT_COPY"] = struct{}{}
	assert.True(t, policy.CanCopy(user, copyGrants, doc).Allowed)
}
