// Package config loads gateway configuration from FEDGATE_-prefixed
// environment variables and validates it before the server starts.
package config
