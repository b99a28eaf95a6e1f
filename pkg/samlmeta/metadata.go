// Package samlmeta parses IdP-published SAML metadata into a structured
// descriptor and generates this system's own SP metadata document.
package samlmeta

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/lnkhq/fedgate/pkg/certutil"
)

// ParsedIdPMetadata is the transient result of parsing an IdP metadata
// document, consumed once to construct an SSO configuration.
type ParsedIdPMetadata struct {
	EntityID                string   `json:"entityId"`
	SSOURL                  string   `json:"ssoUrl"`
	SLOURL                  string   `json:"sloUrl,omitempty"`
	Certificate             string   `json:"certificate"`
	NameIDFormats           []string `json:"nameIdFormats,omitempty"`
	WantAuthnRequestsSigned bool     `json:"wantAuthnRequestsSigned"`
}

// ParseIdPMetadata parses an EntityDescriptor/IDPSSODescriptor document.
//
// Endpoint selection: the SSO URL prefers the HTTP-Redirect binding,
// then HTTP-POST; the SLO URL prefers HTTP-POST, then HTTP-Redirect.
// The certificate comes from the first KeyDescriptor whose use is
// absent or "signing".
func ParseIdPMetadata(metadataXML []byte) (*ParsedIdPMetadata, error) {
	var entity EntityDescriptor
	if err := xml.Unmarshal(metadataXML, &entity); err != nil {
		return nil, fmt.Errorf("failed to parse metadata XML: %w", err)
	}

	if entity.EntityID == "" {
		return nil, fmt.Errorf("metadata is missing EntityDescriptor entityID")
	}

	idp := entity.IDPSSODescriptor
	if idp == nil {
		return nil, fmt.Errorf("metadata has no IDPSSODescriptor element")
	}

	parsed := &ParsedIdPMetadata{
		EntityID:                entity.EntityID,
		SSOURL:                  pickEndpoint(ssoLocations(idp.SingleSignOnServices), BindingHTTPRedirect, BindingHTTPPost),
		SLOURL:                  pickEndpoint(sloLocations(idp.SingleLogoutServices), BindingHTTPPost, BindingHTTPRedirect),
		NameIDFormats:           idp.NameIDFormats,
		WantAuthnRequestsSigned: idp.WantAuthnRequestsSigned,
	}

	if parsed.SSOURL == "" {
		return nil, fmt.Errorf("metadata has no SingleSignOnService endpoint")
	}

	cert := signingCertificate(idp.KeyDescriptors)
	if cert == "" {
		return nil, fmt.Errorf("metadata has no signing certificate")
	}
	parsed.Certificate = certutil.Format(cert)

	return parsed, nil
}

// SPConfig describes this system's service-provider role for one tenant.
type SPConfig struct {
	EntityID     string
	ACSURL       string
	SLOURL       string
	NameIDFormat string
	// Certificate is optional PEM signing material advertised to the IdP.
	Certificate string
}

// GenerateSPMetadata emits the service-provider entity descriptor as
// SAML 2.0 metadata XML.
func GenerateSPMetadata(cfg SPConfig) ([]byte, error) {
	if cfg.EntityID == "" {
		return nil, fmt.Errorf("sp entity id is required")
	}
	if cfg.ACSURL == "" {
		return nil, fmt.Errorf("sp acs url is required")
	}

	sp := &SPSSODescriptor{
		ProtocolSupportEnumeration: ProtocolSAML2,
		WantAssertionsSigned:       true,
		AssertionConsumerServices: []AssertionConsumerService{
			{
				Binding:   BindingHTTPPost,
				Location:  cfg.ACSURL,
				Index:     0,
				IsDefault: true,
			},
		},
	}

	if cfg.NameIDFormat != "" {
		sp.NameIDFormats = []string{cfg.NameIDFormat}
	}

	if cfg.SLOURL != "" {
		sp.SingleLogoutServices = []SingleLogoutService{
			{Binding: BindingHTTPPost, Location: cfg.SLOURL},
			{Binding: BindingHTTPRedirect, Location: cfg.SLOURL},
		}
	}

	if cfg.Certificate != "" {
		der, err := certutil.DERBase64(cfg.Certificate)
		if err != nil {
			return nil, fmt.Errorf("invalid sp certificate: %w", err)
		}
		sp.KeyDescriptors = []KeyDescriptor{
			{
				Use:     "signing",
				KeyInfo: KeyInfo{X509Data: &X509Data{X509Certificate: der}},
			},
		}
	}

	entity := EntityDescriptor{
		EntityID:        cfg.EntityID,
		SPSSODescriptor: sp,
	}

	out, err := xml.MarshalIndent(&entity, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sp metadata: %w", err)
	}
	return []byte(xml.Header + string(out)), nil
}

type endpoint struct {
	binding  string
	location string
}

func ssoLocations(svcs []SingleSignOnService) []endpoint {
	eps := make([]endpoint, 0, len(svcs))
	for _, s := range svcs {
		eps = append(eps, endpoint{binding: s.Binding, location: s.Location})
	}
	return eps
}

func sloLocations(svcs []SingleLogoutService) []endpoint {
	eps := make([]endpoint, 0, len(svcs))
	for _, s := range svcs {
		eps = append(eps, endpoint{binding: s.Binding, location: s.Location})
	}
	return eps
}

// pickEndpoint returns the location of the first endpoint matching the
// bindings in preference order, falling back to any endpoint at all.
func pickEndpoint(eps []endpoint, preferred ...string) string {
	for _, binding := range preferred {
		for _, ep := range eps {
			if ep.binding == binding && ep.location != "" {
				return ep.location
			}
		}
	}
	for _, ep := range eps {
		if ep.location != "" {
			return ep.location
		}
	}
	return ""
}

// signingCertificate returns the first certificate usable for signature
// verification: use="signing" wins, a use-less descriptor is accepted.
func signingCertificate(keys []KeyDescriptor) string {
	for _, kd := range keys {
		if kd.Use != "" && kd.Use != "signing" {
			continue
		}
		if kd.KeyInfo.X509Data == nil {
			continue
		}
		if cert := strings.TrimSpace(kd.KeyInfo.X509Data.X509Certificate); cert != "" {
			return cert
		}
	}
	return ""
}
