// Package workflow implements the document status state machine.
//
// Transitions are data, not code: each edge row declares its source and
// destination status, a minimum role level, an optional required role
// set, and an optional requirement string in either grant vocabulary.
// The engine filters edges by the document's current status, authorizes
// each against the caller's grants, and commits status changes with a
// conditional update so concurrent transitions cannot silently overwrite
// each other. Every applied transition appends an immutable history
// record.
//
// Rejections carry a distinct reason per failed check (level, role,
// grant, stale state) for diagnosability; clients see the reason
// category, logs see the detail.
package workflow
