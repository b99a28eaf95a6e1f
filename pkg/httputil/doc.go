// Package httputil provides HTTP utilities for standardized
// request/response handling: JSON encoding, error responses mapped to
// status codes, path and query parameter parsing, and the middleware
// chain (request IDs, structured request logging, panic recovery, body
// limits) shared by all gateway endpoints.
package httputil
