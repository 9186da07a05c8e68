// Package observability provides structured logging, Prometheus metrics,
// and health checks for the DocuVault server.
package observability
