package oidc

import (
	"fmt"

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

// fallbackClaims maps each logical field to standard OIDC claim names,
// consulted in order after the tenant's explicit mapping.
var fallbackClaims = map[string][]string{
	FieldEmail:       {"email"},
	FieldFirstName:   {"given_name"},
	FieldLastName:    {"family_name"},
	FieldDisplayName: {"name"},
	FieldGroups:      {"groups"},
}

// MapClaims resolves the normalized identity from a userinfo claim set.
// The sub claim is the external id and is required, as is an email.
func MapClaims(claims map[string]interface{}, mapping map[string]string) (*identity.External, error) {
	lookup := func(field string) string {
		if key := mapping[field]; key != "" {
			if v := stringClaim(claims, key); v != "" {
				return v
			}
		}
		for _, key := range fallbackClaims[field] {
			if v := stringClaim(claims, key); v != "" {
				return v
			}
		}
		return ""
	}

	flat := make(map[string]string)
	for k, v := range claims {
		if s, ok := v.(string); ok {
			flat[k] = s
		}
	}

	ext := &identity.External{
		ExternalID:  stringClaim(claims, "sub"),
		Email:       lookup(FieldEmail),
		Username:    stringClaim(claims, "preferred_username"),
		FirstName:   lookup(FieldFirstName),
		LastName:    lookup(FieldLastName),
		DisplayName: lookup(FieldDisplayName),
		Picture:     stringClaim(claims, "picture"),
		Attributes:  flat,
	}

	if key := mapping[FieldGroups]; key != "" {
		ext.Groups = arrayClaim(claims, key)
	}
	if len(ext.Groups) == 0 {
		for _, key := range fallbackClaims[FieldGroups] {
			if groups := arrayClaim(claims, key); len(groups) > 0 {
				ext.Groups = groups
				break
			}
		}
	}

	if ext.Username == "" {
		ext.Username = ext.Email
	}

	if ext.ExternalID == "" {
		return nil, fmt.Errorf("oidc: userinfo is missing the sub claim")
	}
	if ext.Email == "" {
		return nil, fmt.Errorf("oidc: userinfo is missing an email claim")
	}
	return ext, nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func arrayClaim(claims map[string]interface{}, key string) []string {
	switch v := claims[key].(type) {
	case []string:
		return v
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}
