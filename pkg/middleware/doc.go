// Package middleware provides the HTTP middleware chain: request ID
// tagging, request logging, metrics, and session authentication.
//
// Authorization checks live in pkg/authz; this package only establishes
// who the caller is and hangs the AuthContext on the request context.
package middleware
