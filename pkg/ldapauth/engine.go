package ldapauth

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/lnkhq/fedgate/pkg/identity"
)

// DefaultTimeout bounds the directory dial.
const DefaultTimeout = 10 * time.Second

const (
	DefaultSearchFilter      = "(uid={{username}})"
	defaultUsernameAttribute = "uid"
	defaultEmailAttribute    = "mail"
)

// Config carries one tenant's directory settings.
type Config struct {
	ConfigID          string
	TeamID            string
	URL               string
	BindDN            string
	BindPassword      string
	SearchBase        string
	SearchFilter      string
	UsernameAttribute string
	EmailAttribute    string
}

func (c Config) searchFilter() string {
	if c.SearchFilter != "" {
		return c.SearchFilter
	}
	return DefaultSearchFilter
}

func (c Config) usernameAttribute() string {
	if c.UsernameAttribute != "" {
		return c.UsernameAttribute
	}
	return defaultUsernameAttribute
}

func (c Config) emailAttribute() string {
	if c.EmailAttribute != "" {
		return c.EmailAttribute
	}
	return defaultEmailAttribute
}

// Conn is the subset of *ldap.Conn the engine uses.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// DialFunc opens a directory connection for the given LDAP URL.
type DialFunc func(url string) (Conn, error)

// SyncResult reports a bulk directory scan. Per-entry failures are
// collected rather than aborting the scan.
type SyncResult struct {
	UsersFound int
	Identities []*identity.External
	Errors     []string
}

// Engine authenticates users against tenant directories.
type Engine struct {
	dial DialFunc
}

// NewEngine creates an engine dialing real directory servers with the
// given timeout. A non-positive timeout falls back to DefaultTimeout.
func NewEngine(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	return &Engine{
		dial: func(url string) (Conn, error) {
			return ldap.DialURL(url, ldap.DialWithDialer(dialer))
		},
	}
}

// NewEngineWithDialer creates an engine with a custom dial function.
func NewEngineWithDialer(dial DialFunc) *Engine {
	return &Engine{dial: dial}
}

// Authenticate verifies a username/password pair. It returns (nil, nil)
// when the user cannot be authenticated for any reason attributable to
// the credentials: zero or multiple directory matches, or a failed bind
// as the matched entry. Callers must not leak which case occurred.
// A non-nil error means the directory itself misbehaved.
func (e *Engine) Authenticate(cfg Config, username, password string) (*identity.External, error) {
	if username == "" || password == "" {
		// An empty password would turn the user bind into an anonymous
		// bind on permissive servers.
		return nil, nil
	}

	conn, err := e.connect(cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	entry, err := e.searchUser(conn, cfg, username)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, nil
	}

	return mapEntry(entry, cfg, username), nil
}

// TestConnection verifies the service-account credentials and that the
// search base is reachable, without authenticating an end user.
func (e *Engine) TestConnection(cfg Config) error {
	conn, err := e.connect(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := ldap.NewSearchRequest(
		cfg.SearchBase,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 0, false,
		"(objectClass=*)",
		[]string{"dn"},
		nil,
	)
	if _, err := conn.Search(req); err != nil {
		return fmt.Errorf("ldap: search base is not reachable: %w", err)
	}
	return nil
}

// SyncUsers scans the directory for provisioning. The search filter is
// the tenant's filter with the username placeholder widened to a
// wildcard.
func (e *Engine) SyncUsers(cfg Config) (*SyncResult, error) {
	conn, err := e.connect(cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	filter := strings.ReplaceAll(cfg.searchFilter(), "{{username}}", "*")
	req := ldap.NewSearchRequest(
		cfg.SearchBase,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		searchAttributes(cfg),
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("ldap: directory search failed: %w", err)
	}

	sync := &SyncResult{UsersFound: len(result.Entries)}
	for _, entry := range result.Entries {
		if entry.GetAttributeValue(cfg.usernameAttribute()) == "" {
			sync.Errors = append(sync.Errors,
				fmt.Sprintf("entry %s has no %s attribute", entry.DN, cfg.usernameAttribute()))
			continue
		}
		sync.Identities = append(sync.Identities, mapEntry(entry, cfg, ""))
	}
	return sync, nil
}

func (e *Engine) connect(cfg Config) (Conn, error) {
	conn, err := e.dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ldap: failed to connect to directory: %w", err)
	}

	if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ldap: service account bind failed: %w", err)
	}
	return conn, nil
}

// searchUser returns the single entry matching the username, or nil
// when the match count is anything other than one.
func (e *Engine) searchUser(conn Conn, cfg Config, username string) (*ldap.Entry, error) {
	filter := strings.ReplaceAll(cfg.searchFilter(), "{{username}}", ldap.EscapeFilter(username))

	req := ldap.NewSearchRequest(
		cfg.SearchBase,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		searchAttributes(cfg),
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("ldap: user search failed: %w", err)
	}
	if len(result.Entries) != 1 {
		return nil, nil
	}
	return result.Entries[0], nil
}

func searchAttributes(cfg Config) []string {
	attrs := []string{"dn", "uid", "cn", "mail", "displayName", "givenName", "sn"}
	for _, extra := range []string{cfg.usernameAttribute(), cfg.emailAttribute()} {
		found := false
		for _, a := range attrs {
			if a == extra {
				found = true
				break
			}
		}
		if !found {
			attrs = append(attrs, extra)
		}
	}
	return attrs
}

func mapEntry(entry *ldap.Entry, cfg Config, fallbackUsername string) *identity.External {
	flat := make(map[string]string)
	for _, attr := range entry.Attributes {
		if len(attr.Values) > 0 {
			flat[attr.Name] = attr.Values[0]
		}
	}

	username := entry.GetAttributeValue(cfg.usernameAttribute())
	if username == "" {
		username = fallbackUsername
	}

	ext := &identity.External{
		ExternalID: username,
		Username:   username,
		Email:      entry.GetAttributeValue(cfg.emailAttribute()),
		FirstName:  entry.GetAttributeValue("givenName"),
		LastName:   entry.GetAttributeValue("sn"),
		Attributes: flat,
	}

	ext.DisplayName = entry.GetAttributeValue("displayName")
	if ext.DisplayName == "" {
		ext.DisplayName = entry.GetAttributeValue("cn")
	}
	return ext
}
