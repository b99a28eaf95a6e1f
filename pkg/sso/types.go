package sso

import (
	"strings"
	"time"
)

// Provider identifies the federation protocol of a configuration.
type Provider string

const (
	// ProviderSAML is SAML 2.0 Web Browser SSO.
	ProviderSAML Provider = "saml"
	// ProviderOIDC is OpenID Connect authorization code flow.
	ProviderOIDC Provider = "oidc"
	// ProviderLDAP is direct bind against an LDAP directory.
	ProviderLDAP Provider = "ldap"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderSAML, ProviderOIDC, ProviderLDAP:
		return true
	}
	return false
}

// Status is the lifecycle state of a configuration. Only active
// configurations accept logins or appear in domain discovery.
type Status string

const (
	// StatusPending is the initial state of a new configuration.
	StatusPending Status = "pending"
	// StatusActive means the configuration serves logins.
	StatusActive Status = "active"
	// StatusInactive is an explicitly disabled configuration.
	StatusInactive Status = "inactive"
)

const (
	// SessionTTL bounds the lifetime of a gateway session.
	SessionTTL = 8 * time.Hour

	// FlowTTL bounds how long an initiated login may sit before the
	// IdP callback arrives.
	FlowTTL = 10 * time.Minute

	// secretPlaceholder replaces stored secrets in API responses.
	secretPlaceholder = "********"
)

// SAMLSettings configures a SAML 2.0 identity provider.
type SAMLSettings struct {
	EntityID     string `json:"entityId"`
	SSOURL       string `json:"ssoUrl"`
	SLOURL       string `json:"sloUrl,omitempty"`
	Certificate  string `json:"certificate"`
	NameIDFormat string `json:"nameIdFormat,omitempty"`
}

// OIDCSettings configures an OpenID Connect provider. Endpoint URLs are
// optional; missing ones are derived from the issuer.
type OIDCSettings struct {
	Issuer           string   `json:"issuer"`
	ClientID         string   `json:"clientId"`
	ClientSecret     string   `json:"clientSecret"`
	AuthorizationURL string   `json:"authorizationUrl,omitempty"`
	TokenURL         string   `json:"tokenUrl,omitempty"`
	UserInfoURL      string   `json:"userInfoUrl,omitempty"`
	Scopes           []string `json:"scopes,omitempty"`
}

// LDAPSettings configures directory-bind authentication.
type LDAPSettings struct {
	URL               string `json:"url"`
	BindDN            string `json:"bindDn"`
	BindPassword      string `json:"bindPassword"`
	SearchBase        string `json:"searchBase"`
	SearchFilter      string `json:"searchFilter,omitempty"`
	UsernameAttribute string `json:"usernameAttribute,omitempty"`
	EmailAttribute    string `json:"emailAttribute,omitempty"`
}

// Configuration is a tenant's SSO setup for one provider. Exactly one
// of SAML, OIDC, and LDAP is set, matching Provider.
type Configuration struct {
	ID               string            `json:"id"`
	TeamID           string            `json:"teamId"`
	Provider         Provider          `json:"provider"`
	Status           Status            `json:"status"`
	Domains          []string          `json:"domains,omitempty"`
	AutoProvision    bool              `json:"autoProvision"`
	EnforceSSO       bool              `json:"enforceSSO"`
	DefaultRole      string            `json:"defaultRole,omitempty"`
	AttributeMapping map[string]string `json:"attributeMapping,omitempty"`
	SAML             *SAMLSettings     `json:"saml,omitempty"`
	OIDC             *OIDCSettings     `json:"oidc,omitempty"`
	LDAP             *LDAPSettings     `json:"ldap,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Validate checks the tagged-union shape: the provider is known and the
// matching settings block, and only it, is present with its required
// fields.
func (c *Configuration) Validate() error {
	if c.TeamID == "" {
		return &ValidationError{Field: "teamId", Reason: "is required"}
	}
	if !c.Provider.Valid() {
		return &ValidationError{Field: "provider", Reason: "must be one of saml, oidc, ldap"}
	}

	set := 0
	for _, present := range []bool{c.SAML != nil, c.OIDC != nil, c.LDAP != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return &ValidationError{Field: "provider", Reason: "exactly one settings block must be provided"}
	}

	switch c.Provider {
	case ProviderSAML:
		if c.SAML == nil {
			return &ValidationError{Field: "saml", Reason: "settings are required for the saml provider"}
		}
		if c.SAML.EntityID == "" {
			return &ValidationError{Field: "saml.entityId", Reason: "is required"}
		}
		if c.SAML.SSOURL == "" {
			return &ValidationError{Field: "saml.ssoUrl", Reason: "is required"}
		}
		if c.SAML.Certificate == "" {
			return &ValidationError{Field: "saml.certificate", Reason: "is required"}
		}
	case ProviderOIDC:
		if c.OIDC == nil {
			return &ValidationError{Field: "oidc", Reason: "settings are required for the oidc provider"}
		}
		if c.OIDC.Issuer == "" {
			return &ValidationError{Field: "oidc.issuer", Reason: "is required"}
		}
		if c.OIDC.ClientID == "" {
			return &ValidationError{Field: "oidc.clientId", Reason: "is required"}
		}
		if c.OIDC.ClientSecret == "" {
			return &ValidationError{Field: "oidc.clientSecret", Reason: "is required"}
		}
	case ProviderLDAP:
		if c.LDAP == nil {
			return &ValidationError{Field: "ldap", Reason: "settings are required for the ldap provider"}
		}
		if c.LDAP.URL == "" {
			return &ValidationError{Field: "ldap.url", Reason: "is required"}
		}
		if c.LDAP.BindDN == "" {
			return &ValidationError{Field: "ldap.bindDn", Reason: "is required"}
		}
		if c.LDAP.SearchBase == "" {
			return &ValidationError{Field: "ldap.searchBase", Reason: "is required"}
		}
	}

	for _, domain := range c.Domains {
		if domain == "" || strings.Contains(domain, "@") {
			return &ValidationError{Field: "domains", Reason: "entries must be bare domain names"}
		}
	}
	return nil
}

// Normalize lowercases domains and trims whitespace from them.
func (c *Configuration) Normalize() {
	for i, domain := range c.Domains {
		c.Domains[i] = strings.ToLower(strings.TrimSpace(domain))
	}
}

// AllowsDomain reports whether an email domain passes the allowed-domain
// policy. An empty list allows every domain.
func (c *Configuration) AllowsDomain(domain string) bool {
	if len(c.Domains) == 0 {
		return true
	}
	domain = strings.ToLower(domain)
	for _, allowed := range c.Domains {
		if allowed == domain {
			return true
		}
	}
	return false
}

// Redacted returns a copy safe for API responses, with stored secrets
// replaced by a placeholder.
func (c *Configuration) Redacted() *Configuration {
	out := *c
	if c.OIDC != nil {
		oidcCopy := *c.OIDC
		if oidcCopy.ClientSecret != "" {
			oidcCopy.ClientSecret = secretPlaceholder
		}
		out.OIDC = &oidcCopy
	}
	if c.LDAP != nil {
		ldapCopy := *c.LDAP
		if ldapCopy.BindPassword != "" {
			ldapCopy.BindPassword = secretPlaceholder
		}
		out.LDAP = &ldapCopy
	}
	return &out
}

// ConfigUpdate is a partial update to a configuration. Nil fields keep
// their stored values; the provider itself cannot change.
type ConfigUpdate struct {
	Provider         Provider          `json:"provider,omitempty"`
	Domains          []string          `json:"domains,omitempty"`
	AutoProvision    *bool             `json:"autoProvision,omitempty"`
	EnforceSSO       *bool             `json:"enforceSSO,omitempty"`
	DefaultRole      *string           `json:"defaultRole,omitempty"`
	AttributeMapping map[string]string `json:"attributeMapping,omitempty"`
	SAML             *SAMLSettings     `json:"saml,omitempty"`
	OIDC             *OIDCSettings     `json:"oidc,omitempty"`
	LDAP             *LDAPSettings     `json:"ldap,omitempty"`
}

// Session is an authenticated gateway session. SAML fields carry what a
// later single logout needs.
type Session struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	TeamID       string            `json:"teamId"`
	ConfigID     string            `json:"configId"`
	Provider     Provider          `json:"provider"`
	NameID       string            `json:"nameId,omitempty"`
	SessionIndex string            `json:"sessionIndex,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	ExpiresAt    time.Time         `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// FlowState is the server-side record of an initiated login, keyed by
// the opaque state token round-tripped through the IdP. For SAML the
// token travels as RelayState; for OIDC as the state parameter.
type FlowState struct {
	State          string    `json:"state"`
	TeamID         string    `json:"teamId"`
	ConfigID       string    `json:"configId"`
	Provider       Provider  `json:"provider"`
	Nonce          string    `json:"nonce,omitempty"`
	RequestID      string    `json:"requestId,omitempty"`
	RedirectTarget string    `json:"redirectTarget,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
