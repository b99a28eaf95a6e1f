package saml

import (
	"fmt"
	"strings"

	saml2 "github.com/russellhaering/gosaml2"

	"github.com/lnkhq/fedgate/pkg/identity"
)

// Logical field names accepted in a tenant's attribute mapping.
const (
	FieldEmail       = "email"
	FieldFirstName   = "firstName"
	FieldLastName    = "lastName"
	FieldDisplayName = "displayName"
	FieldGroups      = "groups"
)

// fallbackAttributes maps each logical field to well-known SAML claim
// names, consulted in order after the tenant's explicit mapping. Keys
// are matched case-insensitively against attribute Name and
// FriendlyName.
var fallbackAttributes = map[string][]string{
	FieldEmail: {
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
		"urn:oid:0.9.2342.19200300.100.1.3",
		"mail",
		"email",
		"emailaddress",
	},
	FieldFirstName: {
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname",
		"urn:oid:2.5.4.42",
		"givenname",
		"firstname",
	},
	FieldLastName: {
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname",
		"urn:oid:2.5.4.4",
		"sn",
		"surname",
		"lastname",
	},
	FieldDisplayName: {
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name",
		"urn:oid:2.16.840.1.113730.3.1.241",
		"displayname",
		"cn",
		"name",
	},
	FieldGroups: {
		"http://schemas.xmlsoap.org/claims/group",
		"http://schemas.microsoft.com/ws/2008/06/identity/claims/groups",
		"groups",
		"memberof",
	},
}

// mapAssertion resolves the normalized identity from a validated
// assertion. Each logical field tries the tenant's configured attribute
// name first, then the built-in fallback table; the NameID serves as
// the external id and, when it looks like an address, as the email of
// last resort.
func mapAssertion(info *saml2.AssertionInfo, mapping map[string]string) (*identity.External, error) {
	attrs := make(map[string][]string)
	flat := make(map[string]string)
	for _, attr := range info.Values {
		var vals []string
		for _, v := range attr.Values {
			if v.Value != "" {
				vals = append(vals, v.Value)
			}
		}
		if len(vals) == 0 {
			continue
		}
		attrs[strings.ToLower(attr.Name)] = vals
		if attr.FriendlyName != "" {
			attrs[strings.ToLower(attr.FriendlyName)] = vals
		}
		flat[attr.Name] = vals[0]
	}

	lookup := func(field string) []string {
		if key := mapping[field]; key != "" {
			if vals, ok := attrs[strings.ToLower(key)]; ok {
				return vals
			}
		}
		for _, key := range fallbackAttributes[field] {
			if vals, ok := attrs[key]; ok {
				return vals
			}
		}
		return nil
	}
	first := func(field string) string {
		if vals := lookup(field); len(vals) > 0 {
			return vals[0]
		}
		return ""
	}

	ext := &identity.External{
		ExternalID:  info.NameID,
		Email:       first(FieldEmail),
		FirstName:   first(FieldFirstName),
		LastName:    first(FieldLastName),
		DisplayName: first(FieldDisplayName),
		Groups:      lookup(FieldGroups),
		Attributes:  flat,
	}

	if ext.Email == "" && strings.Contains(info.NameID, "@") {
		ext.Email = info.NameID
	}
	if ext.Username == "" {
		ext.Username = ext.Email
	}

	if ext.ExternalID == "" {
		return nil, fmt.Errorf("saml: assertion has no NameID")
	}
	if ext.Email == "" {
		return nil, fmt.Errorf("saml: assertion has no email attribute")
	}
	return ext, nil
}
