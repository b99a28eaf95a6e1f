// Package ldapauth authenticates username/password pairs against a
// tenant's directory server: service-account bind, escaped user search,
// then a bind as the matched entry. Authentication failures are
// deliberately indistinguishable from unknown users.
package ldapauth
