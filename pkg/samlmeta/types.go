package samlmeta

import "encoding/xml"

// SAML 2.0 metadata namespace URIs and bindings.
const (
	NamespaceMetadata = "urn:oasis:names:tc:SAML:2.0:metadata"
	NamespaceDSig     = "http://www.w3.org/2000/09/xmldsig#"
	ProtocolSAML2     = "urn:oasis:names:tc:SAML:2.0:protocol"

	BindingHTTPRedirect = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
	BindingHTTPPost     = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
)

// EntityDescriptor is the root of a SAML metadata document.
type EntityDescriptor struct {
	XMLName          xml.Name          `xml:"urn:oasis:names:tc:SAML:2.0:metadata EntityDescriptor"`
	EntityID         string            `xml:"entityID,attr"`
	ValidUntil       string            `xml:"validUntil,attr,omitempty"`
	IDPSSODescriptor *IDPSSODescriptor `xml:"IDPSSODescriptor,omitempty"`
	SPSSODescriptor  *SPSSODescriptor  `xml:"SPSSODescriptor,omitempty"`
}

// IDPSSODescriptor describes an identity provider's SSO endpoints and keys.
type IDPSSODescriptor struct {
	XMLName                    xml.Name              `xml:"urn:oasis:names:tc:SAML:2.0:metadata IDPSSODescriptor"`
	ProtocolSupportEnumeration string                `xml:"protocolSupportEnumeration,attr"`
	WantAuthnRequestsSigned    bool                  `xml:"WantAuthnRequestsSigned,attr,omitempty"`
	KeyDescriptors             []KeyDescriptor       `xml:"KeyDescriptor"`
	NameIDFormats              []string              `xml:"NameIDFormat"`
	SingleSignOnServices       []SingleSignOnService `xml:"SingleSignOnService"`
	SingleLogoutServices       []SingleLogoutService `xml:"SingleLogoutService"`
}

// SPSSODescriptor describes a service provider's consumer endpoints.
type SPSSODescriptor struct {
	XMLName                    xml.Name                   `xml:"urn:oasis:names:tc:SAML:2.0:metadata SPSSODescriptor"`
	ProtocolSupportEnumeration string                     `xml:"protocolSupportEnumeration,attr"`
	AuthnRequestsSigned        bool                       `xml:"AuthnRequestsSigned,attr,omitempty"`
	WantAssertionsSigned       bool                       `xml:"WantAssertionsSigned,attr,omitempty"`
	KeyDescriptors             []KeyDescriptor            `xml:"KeyDescriptor,omitempty"`
	SingleLogoutServices       []SingleLogoutService      `xml:"SingleLogoutService,omitempty"`
	NameIDFormats              []string                   `xml:"NameIDFormat,omitempty"`
	AssertionConsumerServices  []AssertionConsumerService `xml:"AssertionConsumerService"`
}

// KeyDescriptor carries key material; use is "signing", "encryption",
// or absent (usable for both).
type KeyDescriptor struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:metadata KeyDescriptor"`
	Use     string   `xml:"use,attr,omitempty"`
	KeyInfo KeyInfo  `xml:"http://www.w3.org/2000/09/xmldsig# KeyInfo"`
}

// KeyInfo wraps xmldsig key material.
type KeyInfo struct {
	XMLName  xml.Name  `xml:"http://www.w3.org/2000/09/xmldsig# KeyInfo"`
	X509Data *X509Data `xml:"http://www.w3.org/2000/09/xmldsig# X509Data,omitempty"`
}

// X509Data holds a base64 DER certificate.
type X509Data struct {
	XMLName         xml.Name `xml:"http://www.w3.org/2000/09/xmldsig# X509Data"`
	X509Certificate string   `xml:"http://www.w3.org/2000/09/xmldsig# X509Certificate"`
}

// SingleSignOnService is an IdP login endpoint.
type SingleSignOnService struct {
	XMLName  xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:metadata SingleSignOnService"`
	Binding  string   `xml:"Binding,attr"`
	Location string   `xml:"Location,attr"`
}

// SingleLogoutService is a logout endpoint.
type SingleLogoutService struct {
	XMLName          xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:metadata SingleLogoutService"`
	Binding          string   `xml:"Binding,attr"`
	Location         string   `xml:"Location,attr"`
	ResponseLocation string   `xml:"ResponseLocation,attr,omitempty"`
}

// AssertionConsumerService is the SP endpoint that receives assertions.
type AssertionConsumerService struct {
	XMLName   xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:metadata AssertionConsumerService"`
	Binding   string   `xml:"Binding,attr"`
	Location  string   `xml:"Location,attr"`
	Index     int      `xml:"index,attr"`
	IsDefault bool     `xml:"isDefault,attr,omitempty"`
}
