// Package saml implements the SAML 2.0 service-provider side of the
// gateway: building AuthnRequests and LogoutRequests, validating signed
// Responses against the identity provider's certificate, and mapping
// assertion attributes to a normalized identity.
//
// Constructed protocol objects are cached per configuration id; the
// cache must be invalidated whenever the configuration's certificate or
// entity settings change.
package saml
