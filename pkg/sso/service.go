package sso

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/lnkhq/fedgate/pkg/certutil"
	"github.com/lnkhq/fedgate/pkg/identity"
	"github.com/lnkhq/fedgate/pkg/ldapauth"
	"github.com/lnkhq/fedgate/pkg/observability"
	"github.com/lnkhq/fedgate/pkg/oidc"
	"github.com/lnkhq/fedgate/pkg/saml"
	"github.com/lnkhq/fedgate/pkg/samlmeta"
	"github.com/lnkhq/fedgate/pkg/teams"
)

// defaultRedirectTarget is where a login lands when the flow did not
// record an explicit destination.
const defaultRedirectTarget = "/dashboard"

// SAMLEngine is the protocol surface the service needs from pkg/saml.
type SAMLEngine interface {
	ACSURL(teamID string) string
	SLOURL(teamID string) string
	Invalidate(configID string)
	CreateLoginRequest(cfg saml.Config, relayState string) (*saml.LoginRequest, error)
	ParseLoginResponse(cfg saml.Config, rawResponse string, mapping map[string]string) (*saml.LoginResult, error)
	CreateLogoutRequest(cfg saml.Config, nameID, sessionIndex string) (string, error)
	ParseLogoutResponse(cfg saml.Config, encodedResponse string) error
	Validate(cfg saml.Config) (*certutil.Info, error)
}

// OIDCEngine is the protocol surface the service needs from pkg/oidc.
type OIDCEngine interface {
	BuildAuthorizationURL(cfg oidc.Config) (*oidc.Authorization, error)
	Authenticate(ctx context.Context, cfg oidc.Config, code, nonce string, mapping map[string]string) (*identity.External, error)
	Discover(ctx context.Context, issuer string) (*oidc.Discovery, error)
	Validate(cfg oidc.Config) error
}

// LDAPEngine is the protocol surface the service needs from
// pkg/ldapauth.
type LDAPEngine interface {
	Authenticate(cfg ldapauth.Config, username, password string) (*identity.External, error)
	TestConnection(cfg ldapauth.Config) error
	SyncUsers(cfg ldapauth.Config) (*ldapauth.SyncResult, error)
}

// Provisioner resolves external identities to internal accounts.
type Provisioner interface {
	ProvisionUser(configID, teamID string, ext *identity.External, policy teams.ProvisionPolicy) (*teams.User, teams.Outcome, error)
}

// TestResult reports a configuration connection test. Upstream
// failures are data, not transport errors.
type TestResult struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// DiscoveryResult answers "which SSO does this email use".
type DiscoveryResult struct {
	HasSSO   bool     `json:"hasSso"`
	Provider Provider `json:"provider,omitempty"`
	TeamID   string   `json:"teamId,omitempty"`
	LoginURL string   `json:"loginUrl,omitempty"`
}

// LoginOutcome is a completed login: the resolved account, the new
// session, and where the browser should land.
type LoginOutcome struct {
	User           *teams.User   `json:"user"`
	Session        *Session      `json:"session"`
	Outcome        teams.Outcome `json:"outcome"`
	RedirectTarget string        `json:"redirectTarget"`
}

// SyncReport summarizes a directory sync.
type SyncReport struct {
	UsersFound int      `json:"usersFound"`
	Created    int      `json:"created"`
	Updated    int      `json:"updated"`
	Linked     int      `json:"linked"`
	Errors     []string `json:"errors,omitempty"`
}

// Service orchestrates configuration management and login flows across
// the three protocol engines.
type Service struct {
	configs    ConfigStore
	sessions   SessionStore
	flows      FlowStore
	saml       SAMLEngine
	oidc       OIDCEngine
	ldap       LDAPEngine
	users      Provisioner
	spEntityID string
	logger     *observability.Logger
}

// NewService creates a new Service. spEntityID is the entity ID this
// gateway presents to SAML identity providers.
func NewService(configs ConfigStore, sessions SessionStore, flows FlowStore,
	samlEngine SAMLEngine, oidcEngine OIDCEngine, ldapEngine LDAPEngine,
	users Provisioner, spEntityID string, logger *observability.Logger) *Service {
	return &Service{
		configs:    configs,
		sessions:   sessions,
		flows:      flows,
		saml:       samlEngine,
		oidc:       oidcEngine,
		ldap:       ldapEngine,
		users:      users,
		spEntityID: spEntityID,
		logger:     logger,
	}
}

// CreateConfig stores a new configuration in pending state, applying
// per-provider defaults and normalizing the SAML certificate.
func (s *Service) CreateConfig(cfg *Configuration) (*Configuration, error) {
	applyDefaults(cfg)
	if err := normalizeCertificate(cfg.SAML); err != nil {
		return nil, err
	}

	if err := s.configs.Create(cfg); err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"config_id": cfg.ID,
		"team_id":   cfg.TeamID,
		"provider":  cfg.Provider,
	}).Info("sso configuration created")
	return cfg, nil
}

// CreateSAMLConfigFromMetadata fills the SAML settings of cfg from an
// identity provider metadata document and stores the configuration.
func (s *Service) CreateSAMLConfigFromMetadata(cfg *Configuration, metadataXML []byte) (*Configuration, error) {
	parsed, err := samlmeta.ParseIdPMetadata(metadataXML)
	if err != nil {
		return nil, &ValidationError{Field: "metadata", Reason: err.Error()}
	}

	cfg.Provider = ProviderSAML
	cfg.OIDC = nil
	cfg.LDAP = nil
	cfg.SAML = &SAMLSettings{
		EntityID:    parsed.EntityID,
		SSOURL:      parsed.SSOURL,
		SLOURL:      parsed.SLOURL,
		Certificate: parsed.Certificate,
	}
	if len(parsed.NameIDFormats) > 0 {
		cfg.SAML.NameIDFormat = parsed.NameIDFormats[0]
	}
	return s.CreateConfig(cfg)
}

// GetConfig fetches a configuration by ID.
func (s *Service) GetConfig(id string) (*Configuration, error) {
	return s.configs.Get(id)
}

// ListConfigs returns a team's configurations.
func (s *Service) ListConfigs(teamID string) ([]*Configuration, error) {
	return s.configs.ListByTeam(teamID)
}

// UpdateConfig applies a partial update. The provider is immutable;
// nil fields keep their stored values, and omitted or placeholder
// secrets keep the stored secret.
func (s *Service) UpdateConfig(id string, update *ConfigUpdate) (*Configuration, error) {
	existing, err := s.configs.Get(id)
	if err != nil {
		return nil, err
	}

	if update.Provider != "" && update.Provider != existing.Provider {
		return nil, &ValidationError{Field: "provider", Reason: "cannot be changed after creation"}
	}
	if update.Domains != nil {
		existing.Domains = update.Domains
	}
	if update.AttributeMapping != nil {
		existing.AttributeMapping = update.AttributeMapping
	}
	if update.DefaultRole != nil {
		existing.DefaultRole = *update.DefaultRole
	}
	if update.AutoProvision != nil {
		existing.AutoProvision = *update.AutoProvision
	}
	if update.EnforceSSO != nil {
		existing.EnforceSSO = *update.EnforceSSO
	}

	switch existing.Provider {
	case ProviderSAML:
		if update.SAML != nil {
			if err := normalizeCertificate(update.SAML); err != nil {
				return nil, err
			}
			existing.SAML = update.SAML
		}
	case ProviderOIDC:
		if update.OIDC != nil {
			secret := update.OIDC.ClientSecret
			if secret == "" || secret == secretPlaceholder {
				update.OIDC.ClientSecret = existing.OIDC.ClientSecret
			}
			existing.OIDC = update.OIDC
		}
	case ProviderLDAP:
		if update.LDAP != nil {
			password := update.LDAP.BindPassword
			if password == "" || password == secretPlaceholder {
				update.LDAP.BindPassword = existing.LDAP.BindPassword
			}
			existing.LDAP = update.LDAP
		}
	}

	if err := s.configs.Update(existing); err != nil {
		return nil, err
	}
	if existing.Provider == ProviderSAML {
		s.saml.Invalidate(id)
	}
	return existing, nil
}

// ActivateConfig makes a configuration the team's live one.
func (s *Service) ActivateConfig(id string) error {
	if err := s.configs.Activate(id); err != nil {
		return err
	}
	s.logger.WithField("config_id", id).Info("sso configuration activated")
	return nil
}

// DeactivateConfig disables a configuration.
func (s *Service) DeactivateConfig(id string) error {
	return s.configs.Deactivate(id)
}

// DeleteConfig removes a configuration.
func (s *Service) DeleteConfig(id string) error {
	if err := s.configs.Delete(id); err != nil {
		return err
	}
	s.saml.Invalidate(id)
	s.logger.WithField("config_id", id).Info("sso configuration deleted")
	return nil
}

// SPMetadata renders the service-provider metadata document a tenant
// uploads to their identity provider.
func (s *Service) SPMetadata(teamID string) ([]byte, error) {
	if teamID == "" {
		return nil, &ValidationError{Field: "teamId", Reason: "is required"}
	}
	metadataXML, err := samlmeta.GenerateSPMetadata(samlmeta.SPConfig{
		EntityID: s.spEntityID,
		ACSURL:   s.saml.ACSURL(teamID),
		SLOURL:   s.saml.SLOURL(teamID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate sp metadata: %w", err)
	}
	return metadataXML, nil
}

// TestConnection validates a configuration against its upstream. The
// returned result reports upstream failures as data; the error return
// is reserved for unknown configurations and storage faults.
func (s *Service) TestConnection(ctx context.Context, id string) (*TestResult, error) {
	cfg, err := s.configs.Get(id)
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case ProviderSAML:
		info, err := s.saml.Validate(samlConfig(cfg))
		if err != nil {
			return &TestResult{Success: false, Message: err.Error()}, nil
		}
		if time.Now().After(info.ExpiresAt) {
			return &TestResult{
				Success: false,
				Message: fmt.Sprintf("identity provider certificate expired on %s", info.ExpiresAt.Format(time.RFC3339)),
			}, nil
		}
		return &TestResult{
			Success: true,
			Message: "saml configuration is valid",
			Details: map[string]interface{}{
				"certificateSubject": info.Subject,
				"certificateExpiry":  info.ExpiresAt.Format(time.RFC3339),
			},
		}, nil

	case ProviderOIDC:
		oc := oidcConfig(cfg)
		if err := s.oidc.Validate(oc); err != nil {
			return &TestResult{Success: false, Message: err.Error()}, nil
		}
		disc, err := s.oidc.Discover(ctx, oc.Issuer)
		if err != nil {
			return &TestResult{Success: false, Message: err.Error()}, nil
		}
		return &TestResult{
			Success: true,
			Message: "oidc provider discovery succeeded",
			Details: map[string]interface{}{
				"authorizationEndpoint": disc.AuthorizationEndpoint,
				"tokenEndpoint":         disc.TokenEndpoint,
			},
		}, nil

	case ProviderLDAP:
		if err := s.ldap.TestConnection(ldapConfig(cfg)); err != nil {
			return &TestResult{Success: false, Message: err.Error()}, nil
		}
		return &TestResult{Success: true, Message: "directory connection succeeded"}, nil
	}
	return nil, &ValidationError{Field: "provider", Reason: "unknown provider"}
}

// Discover resolves an email address to its tenant's SSO entry point.
// Unknown domains and malformed addresses both report no SSO rather
// than an error, so the endpoint cannot be used to probe tenants.
func (s *Service) Discover(email string) (*DiscoveryResult, error) {
	domain, ok := emailDomain(email)
	if !ok {
		return &DiscoveryResult{HasSSO: false}, nil
	}

	cfg, err := s.configs.FindActiveByDomain(domain)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return &DiscoveryResult{HasSSO: false}, nil
	}

	return &DiscoveryResult{
		HasSSO:   true,
		Provider: cfg.Provider,
		TeamID:   cfg.TeamID,
		LoginURL: fmt.Sprintf("/sso/%s/%s/login", cfg.Provider, cfg.TeamID),
	}, nil
}

// InitiateSAMLLogin starts a SAML flow for the team's active
// configuration and returns the IdP redirect URL.
func (s *Service) InitiateSAMLLogin(ctx context.Context, teamID, redirectTarget string) (string, error) {
	cfg, err := s.activeConfig(teamID, ProviderSAML)
	if err != nil {
		return "", err
	}

	state, err := randomState()
	if err != nil {
		return "", err
	}

	req, err := s.saml.CreateLoginRequest(samlConfig(cfg), state)
	if err != nil {
		return "", &ProtocolError{Provider: ProviderSAML, Err: err}
	}

	err = s.flows.Put(ctx, &FlowState{
		State:          state,
		TeamID:         teamID,
		ConfigID:       cfg.ID,
		Provider:       ProviderSAML,
		RequestID:      req.RequestID,
		RedirectTarget: redirectTarget,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return "", err
	}
	return req.RedirectURL, nil
}

// HandleSAMLCallback completes a SAML flow from the ACS POST.
func (s *Service) HandleSAMLCallback(ctx context.Context, teamID, samlResponse, relayState string) (*LoginOutcome, error) {
	flow, cfg, err := s.consumeFlow(ctx, relayState, teamID, ProviderSAML)
	if err != nil {
		return nil, err
	}

	result, err := s.saml.ParseLoginResponse(samlConfig(cfg), samlResponse, cfg.AttributeMapping)
	if err != nil {
		return nil, &ProtocolError{Provider: ProviderSAML, Err: err}
	}

	outcome, err := s.completeLogin(cfg, flow, result.Identity, result.SessionIndex)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// InitiateOIDCLogin starts an OIDC flow for the team's active
// configuration and returns the provider's authorize URL.
func (s *Service) InitiateOIDCLogin(ctx context.Context, teamID, redirectTarget string) (string, error) {
	cfg, err := s.activeConfig(teamID, ProviderOIDC)
	if err != nil {
		return "", err
	}

	auth, err := s.oidc.BuildAuthorizationURL(oidcConfig(cfg))
	if err != nil {
		return "", &ProtocolError{Provider: ProviderOIDC, Err: err}
	}

	err = s.flows.Put(ctx, &FlowState{
		State:          auth.State,
		TeamID:         teamID,
		ConfigID:       cfg.ID,
		Provider:       ProviderOIDC,
		Nonce:          auth.Nonce,
		RedirectTarget: redirectTarget,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return "", err
	}
	return auth.RedirectURL, nil
}

// HandleOIDCCallback completes an OIDC flow from the provider's
// authorization-code redirect.
func (s *Service) HandleOIDCCallback(ctx context.Context, teamID, code, state string) (*LoginOutcome, error) {
	flow, cfg, err := s.consumeFlow(ctx, state, teamID, ProviderOIDC)
	if err != nil {
		return nil, err
	}

	ext, err := s.oidc.Authenticate(ctx, oidcConfig(cfg), code, flow.Nonce, cfg.AttributeMapping)
	if err != nil {
		return nil, &ProtocolError{Provider: ProviderOIDC, Err: err}
	}

	outcome, err := s.completeLogin(cfg, flow, ext, "")
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// AuthenticateLDAP performs a direct-bind login against the team's
// active directory configuration.
func (s *Service) AuthenticateLDAP(ctx context.Context, teamID, username, password string) (*LoginOutcome, error) {
	cfg, err := s.activeConfig(teamID, ProviderLDAP)
	if err != nil {
		return nil, err
	}

	ext, err := s.ldap.Authenticate(ldapConfig(cfg), username, password)
	if err != nil {
		return nil, &NetworkError{Op: "directory authentication", Err: err}
	}
	if ext == nil {
		return nil, &ProtocolError{Provider: ProviderLDAP, Err: fmt.Errorf("invalid credentials")}
	}

	flow := &FlowState{TeamID: teamID, ConfigID: cfg.ID, Provider: ProviderLDAP}
	outcome, err := s.completeLogin(cfg, flow, ext, "")
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Logout destroys a session. For SAML sessions with single logout
// configured it also returns the IdP logout redirect URL.
func (s *Service) Logout(ctx context.Context, sessionID string) (string, error) {
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}
	if err := s.sessions.Delete(sessionID); err != nil {
		return "", err
	}

	if session.Provider != ProviderSAML || session.NameID == "" {
		return "", nil
	}

	cfg, err := s.configs.Get(session.ConfigID)
	if err != nil || cfg.SAML == nil || cfg.SAML.SLOURL == "" {
		return "", nil
	}

	logoutURL, err := s.saml.CreateLogoutRequest(samlConfig(cfg), session.NameID, session.SessionIndex)
	if err != nil {
		// Single logout is best effort; the local session is gone.
		s.logger.WithError(err).WithField("config_id", cfg.ID).Warn("failed to build single logout request")
		return "", nil
	}
	return logoutURL, nil
}

// HandleSAMLLogoutCallback verifies the IdP's single logout response.
// The local session was already destroyed when logout started, so a bad
// response only means the IdP side may still be live.
func (s *Service) HandleSAMLLogoutCallback(teamID, encodedResponse string) error {
	cfg, err := s.activeConfig(teamID, ProviderSAML)
	if err != nil {
		return err
	}
	if err := s.saml.ParseLogoutResponse(samlConfig(cfg), encodedResponse); err != nil {
		return &ProtocolError{Provider: ProviderSAML, Err: err}
	}
	s.logger.WithField("team_id", teamID).Info("saml single logout confirmed")
	return nil
}

// GetSession fetches a live session.
func (s *Service) GetSession(id string) (*Session, error) {
	return s.sessions.Get(id)
}

// ListSessions returns a user's live sessions.
func (s *Service) ListSessions(userID string) ([]*Session, error) {
	return s.sessions.ListByUser(userID)
}

// SyncLDAPUsers scans the team's directory and provisions every entry
// through the configuration's policy.
func (s *Service) SyncLDAPUsers(teamID string) (*SyncReport, error) {
	cfg, err := s.activeConfig(teamID, ProviderLDAP)
	if err != nil {
		return nil, err
	}

	sync, err := s.ldap.SyncUsers(ldapConfig(cfg))
	if err != nil {
		return nil, &NetworkError{Op: "directory sync", Err: err}
	}

	report := &SyncReport{UsersFound: sync.UsersFound, Errors: sync.Errors}
	policy := teams.ProvisionPolicy{AutoProvision: cfg.AutoProvision, DefaultRole: cfg.DefaultRole}
	for _, ext := range sync.Identities {
		if !cfg.AllowsDomain(domainOf(ext.Email)) {
			report.Errors = append(report.Errors,
				fmt.Sprintf("user %s: email domain is not allowed", ext.ExternalID))
			continue
		}
		_, outcome, err := s.users.ProvisionUser(cfg.ID, teamID, ext, policy)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("user %s: %v", ext.ExternalID, err))
			continue
		}
		switch outcome {
		case teams.OutcomeCreated:
			report.Created++
		case teams.OutcomeUpdated:
			report.Updated++
		case teams.OutcomeLinked:
			report.Linked++
		}
	}
	return report, nil
}

// consumeFlow validates and invalidates the flow for a callback.
func (s *Service) consumeFlow(ctx context.Context, state, teamID string, provider Provider) (*FlowState, *Configuration, error) {
	flow, err := s.flows.Consume(ctx, state)
	if err != nil {
		return nil, nil, err
	}
	if flow == nil || flow.Provider != provider || flow.TeamID != teamID {
		return nil, nil, &ProtocolError{Provider: provider, Err: fmt.Errorf("unknown or expired login flow")}
	}

	cfg, err := s.configs.Get(flow.ConfigID)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Status != StatusActive {
		return nil, nil, &ProtocolError{Provider: provider, Err: fmt.Errorf("configuration is not active")}
	}
	return flow, cfg, nil
}

// completeLogin applies the domain policy, provisions the account, and
// opens a session.
func (s *Service) completeLogin(cfg *Configuration, flow *FlowState, ext *identity.External, sessionIndex string) (*LoginOutcome, error) {
	if !cfg.AllowsDomain(domainOf(ext.Email)) {
		return nil, &ValidationError{Field: "email", Reason: "domain is not allowed by this configuration"}
	}

	policy := teams.ProvisionPolicy{AutoProvision: cfg.AutoProvision, DefaultRole: cfg.DefaultRole}
	user, outcome, err := s.users.ProvisionUser(cfg.ID, cfg.TeamID, ext, policy)
	if err != nil {
		return nil, err
	}

	session := &Session{
		UserID:       user.ID,
		TeamID:       cfg.TeamID,
		ConfigID:     cfg.ID,
		Provider:     cfg.Provider,
		NameID:       ext.ExternalID,
		SessionIndex: sessionIndex,
		Attributes:   ext.Attributes,
	}
	if err := s.sessions.Create(session); err != nil {
		return nil, err
	}

	target := flow.RedirectTarget
	if target == "" {
		target = defaultRedirectTarget
	}

	s.logger.WithFields(map[string]interface{}{
		"team_id":  cfg.TeamID,
		"provider": cfg.Provider,
		"user_id":  user.ID,
		"outcome":  outcome,
	}).Info("sso login completed")

	return &LoginOutcome{
		User:           user,
		Session:        session,
		Outcome:        outcome,
		RedirectTarget: target,
	}, nil
}

// activeConfig returns the team's active configuration for a provider.
func (s *Service) activeConfig(teamID string, provider Provider) (*Configuration, error) {
	configs, err := s.configs.ListByTeam(teamID)
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if cfg.Provider == provider && cfg.Status == StatusActive {
			return cfg, nil
		}
	}
	return nil, &NotFoundError{Resource: fmt.Sprintf("active %s configuration for team", provider), ID: teamID}
}

// normalizeCertificate re-wraps and parses a SAML certificate so a
// broken one fails at write time instead of at the next login. Empty
// certificates fall through to Configuration.Validate's field ordering.
func normalizeCertificate(settings *SAMLSettings) error {
	if settings == nil || settings.Certificate == "" {
		return nil
	}
	settings.Certificate = certutil.Format(settings.Certificate)
	if _, err := certutil.Validate(settings.Certificate); err != nil {
		return &ValidationError{Field: "saml.certificate", Reason: err.Error()}
	}
	return nil
}

// applyDefaults fills per-provider defaults before a configuration is
// persisted.
func applyDefaults(cfg *Configuration) {
	if cfg.OIDC != nil && len(cfg.OIDC.Scopes) == 0 {
		cfg.OIDC.Scopes = append([]string(nil), oidc.DefaultScopes...)
	}
	if cfg.LDAP != nil && cfg.LDAP.SearchFilter == "" {
		cfg.LDAP.SearchFilter = ldapauth.DefaultSearchFilter
	}
}

func samlConfig(cfg *Configuration) saml.Config {
	return saml.Config{
		ConfigID:     cfg.ID,
		TeamID:       cfg.TeamID,
		EntityID:     cfg.SAML.EntityID,
		SSOURL:       cfg.SAML.SSOURL,
		SLOURL:       cfg.SAML.SLOURL,
		Certificate:  cfg.SAML.Certificate,
		NameIDFormat: cfg.SAML.NameIDFormat,
	}
}

func oidcConfig(cfg *Configuration) oidc.Config {
	return oidc.Config{
		ConfigID:         cfg.ID,
		TeamID:           cfg.TeamID,
		Issuer:           cfg.OIDC.Issuer,
		ClientID:         cfg.OIDC.ClientID,
		ClientSecret:     cfg.OIDC.ClientSecret,
		AuthorizationURL: cfg.OIDC.AuthorizationURL,
		TokenURL:         cfg.OIDC.TokenURL,
		UserInfoURL:      cfg.OIDC.UserInfoURL,
		Scopes:           cfg.OIDC.Scopes,
	}
}

func ldapConfig(cfg *Configuration) ldapauth.Config {
	return ldapauth.Config{
		ConfigID:          cfg.ID,
		TeamID:            cfg.TeamID,
		URL:               cfg.LDAP.URL,
		BindDN:            cfg.LDAP.BindDN,
		BindPassword:      cfg.LDAP.BindPassword,
		SearchBase:        cfg.LDAP.SearchBase,
		SearchFilter:      cfg.LDAP.SearchFilter,
		UsernameAttribute: cfg.LDAP.UsernameAttribute,
		EmailAttribute:    cfg.LDAP.EmailAttribute,
	}
}

// emailDomain extracts the domain of an address, lowercased. Reports
// false for anything that does not look like local@domain.
func emailDomain(email string) (string, bool) {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", false
	}
	domain := strings.ToLower(email[at+1:])
	if strings.ContainsAny(domain, "@ ") {
		return "", false
	}
	return domain, true
}

func domainOf(email string) string {
	domain, _ := emailDomain(email)
	return domain
}

// randomState returns 32 bytes of cryptographic randomness, hex
// encoded, for use as a RelayState flow key.
func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate flow state token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
