// Package session issues and validates signed session tokens.
//
// Tokens carry the user's resolved grants baked in at issuance time, so
// request-path authorization checks read the token instead of the database.
// The cost is bounded staleness: grant changes reach a live session only
// when its token is reissued, which the auth middleware triggers once the
// baked grants are older than the configured propagation window. The
// replacement token is returned in the X-Refreshed-Token response header.
//
// Grant snapshots come through the GrantSource interface rather than a
// direct dependency on the resolution engine, which keeps the package free
// of authorization semantics.
package session
