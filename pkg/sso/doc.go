// Package sso is the core of the identity-federation gateway. It owns
// tenant SSO configurations and their lifecycle, the domain index used
// for login discovery, in-flight login flows, and gateway sessions, and
// orchestrates the SAML, OIDC, and LDAP protocol engines into complete
// login, logout, and directory-sync operations.
package sso
