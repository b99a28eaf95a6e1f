package samlmeta

import (
	"encoding/xml"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Base64 DER of a self-signed test certificate (CN=test.example.com).
const testCertBody = `MIIDizCCAnOgAwIBAgIUSFZKuGtORn0Swgu5dIVJBF58qREwDQYJKoZIhvcNAQEL
BQAwVTELMAkGA1UEBhMCVVMxDTALBgNVBAgMBFRlc3QxDTALBgNVBAcMBFRlc3Qx
DTALBgNVBAoMBFRlc3QxGTAXBgNVBAMMEHRlc3QuZXhhbXBsZS5jb20wHhcNMjYw
MTI4MjIxNTA0WhcNMjcwMTI4MjIxNTA0WjBVMQswCQYDVQQGEwJVUzENMAsGA1UE
CAwEVGVzdDENMAsGA1UEBwwEVGVzdDENMAsGA1UECgwEVGVzdDEZMBcGA1UEAwwQ
dGVzdC5leGFtcGxlLmNvbTCCASIwDQYJKoZIhvcNAQEBBQADggEPADCCAQoCggEB
AKjnv/B2fPTslhsQHPFE/RF7ICfSq3BIVELtwfTe054cMtYpKsPGzNqFz8QJICd6
kxLnV8GQTYd3vrL0yHISEOz6Ay7vOGqe34WThS5jXjf3BhRChRoMXsgush7XkdzO
fnFzQ1dHxqxQjfJFg3hIDaAwQEGQPhuoA3YSEJG1ReeKdgGvXJJZ9Y2N//27Ayfz
K3GmuoucOpnD4Ec6hkAdbiWDHyyb3e+MF3OYaimCpRmVnYi9W2Qa/laiPFf1UuZy
ewdeChnOrLa7CiIq5Et4Q5twbohkMZL9fPr7uT/tivYjLgu6BBBh/4T/LbsWbNcF
JzAiXSljN+4FNFY4UjJOf0kCAwEAAaNTMFEwHQYDVR0OBBYEFDLaGgYYOUVWM0pM
SVORaP2OHeqTMB8GA1UdIwQYMBaAFDLaGgYYOUVWM0pMSVORaP2OHeqTMA8GA1Ud
EwEB/wQFMAMBAf8wDQYJKoZIhvcNAQELBQADggEBAEBkxZMiUIiZhEtpgAHSJRkh
WeItSXk3xN5Z1O14h+XiEQT9PGoq5uXHVe973kFij4d+O+MtqEiPzKBLg8nJnC2C
XxHRe1VCR+jyw/9MuCMC0BssR9IUHGGq29mpvm2+GYUSZzqDT0jL//z5pOMYHTKQ
5Kqo5s22TRrcuxc4EtjZZVO96SZXu7LlpOcuQ6B9j9LhX4snnIJO7QT2XpBL7BLR
3tHbxSZqROr3p80dzj8RptXCCz4Xq6ohgWSpVCL3zexKG3/BGgUY0Kqp1zrHNSZQ
PZhuWKT1ZonPT9jDjiiFGp5Be/xOxr6H8iHMlr+e8L4/jmgAsRkrly+De4x9xYc=`

func idpMetadataXML(keyUse string) string {
	use := ""
	if keyUse != "" {
		use = fmt.Sprintf(` use=%q`, keyUse)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://idp.example.com">
  <md:IDPSSODescriptor WantAuthnRequestsSigned="true" protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:KeyDescriptor%s>
      <ds:KeyInfo xmlns:ds="http://www.w3.org/2000/09/xmldsig#">
        <ds:X509Data>
          <ds:X509Certificate>%s</ds:X509Certificate>
        </ds:X509Data>
      </ds:KeyInfo>
    </md:KeyDescriptor>
    <md:NameIDFormat>urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress</md:NameIDFormat>
    <md:NameIDFormat>urn:oasis:names:tc:SAML:2.0:nameid-format:persistent</md:NameIDFormat>
    <md:SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location="https://idp.example.com/sso/post"/>
    <md:SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="https://idp.example.com/sso/redirect"/>
    <md:SingleLogoutService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="https://idp.example.com/slo/redirect"/>
    <md:SingleLogoutService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location="https://idp.example.com/slo/post"/>
  </md:IDPSSODescriptor>
</md:EntityDescriptor>`, use, testCertBody)
}

func TestParseIdPMetadata(t *testing.T) {
	parsed, err := ParseIdPMetadata([]byte(idpMetadataXML("signing")))
	require.NoError(t, err)

	assert.Equal(t, "https://idp.example.com", parsed.EntityID)
	// HTTP-Redirect is preferred for SSO even though POST is listed first.
	assert.Equal(t, "https://idp.example.com/sso/redirect", parsed.SSOURL)
	// HTTP-POST is preferred for SLO even though Redirect is listed first.
	assert.Equal(t, "https://idp.example.com/slo/post", parsed.SLOURL)
	assert.True(t, parsed.WantAuthnRequestsSigned)
	assert.Equal(t, []string{
		"urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress",
		"urn:oasis:names:tc:SAML:2.0:nameid-format:persistent",
	}, parsed.NameIDFormats)

	assert.True(t, strings.HasPrefix(parsed.Certificate, "-----BEGIN CERTIFICATE-----"))
	assert.True(t, strings.HasSuffix(parsed.Certificate, "-----END CERTIFICATE-----"))
}

func TestParseIdPMetadataKeyUse(t *testing.T) {
	// A KeyDescriptor with no use attribute counts as signing material.
	parsed, err := ParseIdPMetadata([]byte(idpMetadataXML("")))
	require.NoError(t, err)
	assert.NotEmpty(t, parsed.Certificate)

	// Encryption-only keys are not trusted for signature verification.
	_, err = ParseIdPMetadata([]byte(idpMetadataXML("encryption")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing certificate")
}

func TestParseIdPMetadataErrors(t *testing.T) {
	tests := []struct {
		name     string
		xml      string
		contains string
	}{
		{"not xml", "this is not xml <", "failed to parse"},
		{
			"missing idp descriptor",
			`<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://idp.example.com"></md:EntityDescriptor>`,
			"IDPSSODescriptor",
		},
		{
			"missing entity id",
			`<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata"><md:IDPSSODescriptor/></md:EntityDescriptor>`,
			"entityID",
		},
		{
			"missing sso endpoint",
			fmt.Sprintf(`<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://idp.example.com">
  <md:IDPSSODescriptor>
    <md:KeyDescriptor><ds:KeyInfo xmlns:ds="http://www.w3.org/2000/09/xmldsig#"><ds:X509Data><ds:X509Certificate>%s</ds:X509Certificate></ds:X509Data></ds:KeyInfo></md:KeyDescriptor>
  </md:IDPSSODescriptor>
</md:EntityDescriptor>`, testCertBody),
			"SingleSignOnService",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIdPMetadata([]byte(tt.xml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestGenerateSPMetadata(t *testing.T) {
	cfg := SPConfig{
		EntityID:     "https://gateway.example.com/sso/saml/metadata",
		ACSURL:       "https://gateway.example.com/sso/saml/team-1/acs",
		SLOURL:       "https://gateway.example.com/sso/saml/team-1/slo",
		NameIDFormat: "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress",
	}

	out, err := GenerateSPMetadata(cfg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), xml.Header))

	// Round-trip through our own parser types.
	var entity EntityDescriptor
	require.NoError(t, xml.Unmarshal(out, &entity))

	assert.Equal(t, cfg.EntityID, entity.EntityID)
	require.NotNil(t, entity.SPSSODescriptor)
	sp := entity.SPSSODescriptor
	assert.True(t, sp.WantAssertionsSigned)
	require.Len(t, sp.AssertionConsumerServices, 1)
	assert.Equal(t, BindingHTTPPost, sp.AssertionConsumerServices[0].Binding)
	assert.Equal(t, cfg.ACSURL, sp.AssertionConsumerServices[0].Location)
	require.Len(t, sp.SingleLogoutServices, 2)
	assert.Equal(t, cfg.SLOURL, sp.SingleLogoutServices[0].Location)
	assert.Equal(t, []string{cfg.NameIDFormat}, sp.NameIDFormats)
}

func TestGenerateSPMetadataValidation(t *testing.T) {
	_, err := GenerateSPMetadata(SPConfig{ACSURL: "https://x"})
	assert.Error(t, err)

	_, err = GenerateSPMetadata(SPConfig{EntityID: "https://x"})
	assert.Error(t, err)

	_, err = GenerateSPMetadata(SPConfig{
		EntityID:    "https://x",
		ACSURL:      "https://x/acs",
		Certificate: "not a certificate",
	})
	assert.Error(t, err)
}

func TestParseGenerateRoundTrip(t *testing.T) {
	// Fields extracted from IdP metadata survive into a generated SP
	// document unchanged.
	parsed, err := ParseIdPMetadata([]byte(idpMetadataXML("signing")))
	require.NoError(t, err)

	out, err := GenerateSPMetadata(SPConfig{
		EntityID:     parsed.EntityID,
		ACSURL:       "https://gateway.example.com/acs",
		SLOURL:       parsed.SLOURL,
		NameIDFormat: parsed.NameIDFormats[0],
		Certificate:  parsed.Certificate,
	})
	require.NoError(t, err)

	var entity EntityDescriptor
	require.NoError(t, xml.Unmarshal(out, &entity))
	assert.Equal(t, parsed.EntityID, entity.EntityID)
	require.NotEmpty(t, entity.SPSSODescriptor.KeyDescriptors)
	got := entity.SPSSODescriptor.KeyDescriptors[0].KeyInfo.X509Data.X509Certificate
	assert.Equal(t, strings.ReplaceAll(testCertBody, "\n", ""), got)
}
