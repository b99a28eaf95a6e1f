// Package oidc implements the relying-party side of the OIDC
// authorization-code flow: building authorization URLs with fresh
// state/nonce values, exchanging codes for tokens, fetching userinfo
// claims, and mapping them to a normalized identity.
package oidc
