// Package api assembles the HTTP server: route registration, middleware
// ordering, and the authentication endpoints.
//
// Middleware order on protected routes is request ID, request logger,
// metrics, session authentication, then the resource gate. Route handlers
// carry their own authorization checks on top; the gate only enforces
// capabilities declared in the resource tree.
package api
