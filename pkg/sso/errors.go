package sso

import (
	"errors"
	"fmt"
)

// ConflictError reports an attempt to create a second configuration for
// an existing (team, provider) pair.
type ConflictError struct {
	TeamID   string
	Provider Provider
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("a %s configuration already exists for team %s", e.Provider, e.TeamID)
}

// ValidationError reports malformed caller input with a field-level
// reason. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown configuration, session, or team.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ProtocolError reports a failed external authentication: SAML
// signature/parse failure, OIDC exchange failure, LDAP bind failure, or
// an unknown login flow. The wrapped cause is for logs; external
// callers only ever see a generic authentication failure.
type ProtocolError struct {
	Provider Provider
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Provider, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NetworkError reports an unreachable IdP, OIDC, or LDAP endpoint.
// Never retried by this service.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsProtocol reports whether err is a ProtocolError.
func IsProtocol(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}
