package saml

import (
	"crypto/x509"
	"fmt"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/lnkhq/fedgate/pkg/certutil"
	"github.com/lnkhq/fedgate/pkg/identity"
)

const (
	cacheSize = 256
	cacheTTL  = time.Hour
)

// Config carries one tenant's identity-provider settings.
type Config struct {
	ConfigID     string
	TeamID       string
	EntityID     string
	SSOURL       string
	SLOURL       string
	Certificate  string
	NameIDFormat string
}

// LoginRequest is a prepared redirect to the identity provider.
// RequestID correlates the eventual assertion back to this request.
type LoginRequest struct {
	RedirectURL string
	RequestID   string
}

// LoginResult is a validated assertion mapped to a normalized identity.
type LoginResult struct {
	Identity     *identity.External
	SessionIndex string
	Issuer       string
}

// Engine builds and validates SAML messages for all tenants. Service
// provider objects are cached per configuration id since they carry
// parsed certificate material.
type Engine struct {
	spEntityID string
	baseURL    string
	cache      *lru.LRU[string, *saml2.SAMLServiceProvider]
}

// NewEngine creates an engine acting as the service provider identified
// by spEntityID, with tenant endpoints rooted at baseURL.
func NewEngine(spEntityID, baseURL string) *Engine {
	return &Engine{
		spEntityID: spEntityID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cache:      lru.NewLRU[string, *saml2.SAMLServiceProvider](cacheSize, nil, cacheTTL),
	}
}

// ACSURL returns the tenant's assertion consumer endpoint.
func (e *Engine) ACSURL(teamID string) string {
	return fmt.Sprintf("%s/sso/saml/%s/acs", e.baseURL, teamID)
}

// SLOURL returns the tenant's single-logout endpoint.
func (e *Engine) SLOURL(teamID string) string {
	return fmt.Sprintf("%s/sso/saml/%s/slo", e.baseURL, teamID)
}

// Invalidate drops the cached service provider for a configuration.
// Must be called whenever the configuration's certificate or entity
// settings change.
func (e *Engine) Invalidate(configID string) {
	e.cache.Remove(configID)
}

func (e *Engine) serviceProvider(cfg Config) (*saml2.SAMLServiceProvider, error) {
	if sp, ok := e.cache.Get(cfg.ConfigID); ok {
		return sp, nil
	}

	cert, err := certutil.Parse(cfg.Certificate)
	if err != nil {
		return nil, fmt.Errorf("saml: invalid identity provider certificate: %w", err)
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.SSOURL,
		IdentityProviderSLOURL:      cfg.SLOURL,
		IdentityProviderIssuer:      cfg.EntityID,
		ServiceProviderIssuer:       e.spEntityID,
		ServiceProviderSLOURL:       e.SLOURL(cfg.TeamID),
		AssertionConsumerServiceURL: e.ACSURL(cfg.TeamID),
		AudienceURI:                 e.spEntityID,
		IDPCertificateStore: &dsig.MemoryX509CertificateStore{
			Roots: []*x509.Certificate{cert},
		},
	}
	if cfg.NameIDFormat != "" {
		sp.NameIdFormat = cfg.NameIDFormat
	}

	e.cache.Add(cfg.ConfigID, sp)
	return sp, nil
}

// CreateLoginRequest builds an AuthnRequest with a fresh id and returns
// the redirect-binding URL for the identity provider's SSO endpoint.
func (e *Engine) CreateLoginRequest(cfg Config, relayState string) (*LoginRequest, error) {
	sp, err := e.serviceProvider(cfg)
	if err != nil {
		return nil, err
	}

	doc, err := sp.BuildAuthRequestDocument()
	if err != nil {
		return nil, fmt.Errorf("saml: failed to build authn request: %w", err)
	}

	redirectURL, err := sp.BuildAuthURLFromDocument(relayState, doc)
	if err != nil {
		return nil, fmt.Errorf("saml: failed to build redirect url: %w", err)
	}

	return &LoginRequest{
		RedirectURL: redirectURL,
		RequestID:   doc.Root().SelectAttrValue("ID", ""),
	}, nil
}

// ParseLoginResponse validates a SAMLResponse form value (still base64
// encoded) against the configuration's certificate and maps the
// assertion to a normalized identity. Untrusted input: any signature or
// structural failure is an error.
func (e *Engine) ParseLoginResponse(cfg Config, rawResponse string, mapping map[string]string) (*LoginResult, error) {
	sp, err := e.serviceProvider(cfg)
	if err != nil {
		return nil, err
	}

	info, err := sp.RetrieveAssertionInfo(rawResponse)
	if err != nil {
		return nil, fmt.Errorf("saml: failed to validate response: %w", err)
	}
	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("saml: assertion is outside its validity window")
		}
		if info.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("saml: assertion audience does not include this service provider")
		}
	}

	ext, err := mapAssertion(info, mapping)
	if err != nil {
		return nil, err
	}

	issuer := cfg.EntityID
	if len(info.Assertions) > 0 && info.Assertions[0].Issuer != nil {
		issuer = info.Assertions[0].Issuer.Value
	}

	return &LoginResult{
		Identity:     ext,
		SessionIndex: info.SessionIndex,
		Issuer:       issuer,
	}, nil
}

// CreateLogoutRequest builds a LogoutRequest for the given subject and
// returns the redirect-binding URL for the identity provider's SLO
// endpoint.
func (e *Engine) CreateLogoutRequest(cfg Config, nameID, sessionIndex string) (string, error) {
	if cfg.SLOURL == "" {
		return "", fmt.Errorf("saml: single logout is not configured")
	}

	sp, err := e.serviceProvider(cfg)
	if err != nil {
		return "", err
	}

	doc, err := sp.BuildLogoutRequestDocument(nameID, sessionIndex)
	if err != nil {
		return "", fmt.Errorf("saml: failed to build logout request: %w", err)
	}

	logoutURL, err := sp.BuildLogoutURLRedirect("", doc)
	if err != nil {
		return "", fmt.Errorf("saml: failed to build logout url: %w", err)
	}
	return logoutURL, nil
}

// ParseLogoutResponse validates an IdP logout response delivered via
// the POST binding.
func (e *Engine) ParseLogoutResponse(cfg Config, encodedResponse string) error {
	sp, err := e.serviceProvider(cfg)
	if err != nil {
		return err
	}

	if _, err := sp.ValidateEncodedLogoutResponsePOST(encodedResponse); err != nil {
		return fmt.Errorf("saml: failed to validate logout response: %w", err)
	}
	return nil
}

// Validate performs protocol-level self-validation of a configuration
// and reports the certificate's parsed validity window. Expiry policy
// is left to the caller.
func (e *Engine) Validate(cfg Config) (*certutil.Info, error) {
	if cfg.EntityID == "" {
		return nil, fmt.Errorf("saml: entity id is required")
	}
	if cfg.SSOURL == "" {
		return nil, fmt.Errorf("saml: sso url is required")
	}
	if u, err := url.Parse(cfg.SSOURL); err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("saml: sso url must be absolute")
	}

	info, err := certutil.Validate(cfg.Certificate)
	if err != nil {
		return nil, fmt.Errorf("saml: invalid certificate: %w", err)
	}
	return info, nil
}
