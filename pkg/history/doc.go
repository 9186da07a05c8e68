// Package history records the document activity trail.
//
// The trail is append-only: entries are inserted and read, never updated.
// Status transition entries are permanent; access entries (views,
// downloads) age out under the retention policy to keep the table bounded.
package history
