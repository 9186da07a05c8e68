// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
//
// Authorization failures deliberately map to generic messages: the exact
// missing capability or permission name stays in server-side logs and the
// document history trail, never in the response body.
package httputil
