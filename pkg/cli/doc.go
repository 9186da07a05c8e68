// Package cli implements the docuvault-admin command tree: role and grant
// management, resource registration, schema migration, seeding, and the
// vocabulary consistency check, all run directly against the database.
package cli
