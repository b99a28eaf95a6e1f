// Package identity defines the normalized external identity produced by
// the protocol engines, independent of which protocol authenticated the
// user.
package identity

// External is the provider-agnostic result of a successful external
// authentication. ExternalID is the provider's stable subject
// identifier (SAML NameID, OIDC sub, LDAP username attribute).
type External struct {
	ExternalID  string            `json:"externalId"`
	Email       string            `json:"email"`
	Username    string            `json:"username,omitempty"`
	FirstName   string            `json:"firstName,omitempty"`
	LastName    string            `json:"lastName,omitempty"`
	DisplayName string            `json:"displayName,omitempty"`
	Groups      []string          `json:"groups,omitempty"`
	Picture     string            `json:"picture,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// FullName returns the best available human-readable name.
func (e *External) FullName() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	if e.FirstName != "" && e.LastName != "" {
		return e.FirstName + " " + e.LastName
	}
	if e.FirstName != "" {
		return e.FirstName
	}
	return e.LastName
}
