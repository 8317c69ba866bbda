// Package server implements the HTTP server and handlers for Task File Drop.
// It wires the routes, the middleware chain, health and metrics endpoints
// around an injected uploads.Service, and provides lifecycle helpers used by
// tests and the production binary.
package server
