// Package teams is the account-provisioning collaborator of the SSO
// gateway: it resolves a normalized external identity to an internal
// user, creating, updating, or linking the account as the tenant's
// provisioning policy allows.
package teams
