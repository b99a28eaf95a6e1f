package oidc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/lnkhq/fedgate/pkg/identity"
)

// DefaultTimeout bounds every outbound call to the provider.
const DefaultTimeout = 10 * time.Second

// Default scopes applied when a configuration specifies none.
var DefaultScopes = []string{"openid", "profile", "email"}

// Config carries one tenant's OIDC provider settings. Endpoint URLs are
// optional; when absent they are derived from the issuer.
type Config struct {
	ConfigID         string
	TeamID           string
	Issuer           string
	ClientID         string
	ClientSecret     string
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string
	Scopes           []string
}

// AuthorizationEndpoint returns the configured authorize URL or the
// issuer-derived default.
func (c Config) AuthorizationEndpoint() string {
	if c.AuthorizationURL != "" {
		return c.AuthorizationURL
	}
	return strings.TrimRight(c.Issuer, "/") + "/authorize"
}

// TokenEndpoint defaults to {issuer}/oauth/token.
func (c Config) TokenEndpoint() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return strings.TrimRight(c.Issuer, "/") + "/oauth/token"
}

// UserInfoEndpoint defaults to {issuer}/userinfo.
func (c Config) UserInfoEndpoint() string {
	if c.UserInfoURL != "" {
		return c.UserInfoURL
	}
	return strings.TrimRight(c.Issuer, "/") + "/userinfo"
}

// Authorization is a prepared redirect to the provider's authorize
// endpoint. State and Nonce must be persisted by the caller and checked
// on the return leg.
type Authorization struct {
	RedirectURL string
	State       string
	Nonce       string
}

// Discovery is the subset of the provider's discovery document the
// gateway cares about.
type Discovery struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
}

// Engine performs the authorization-code flow for all tenants.
type Engine struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewEngine creates an engine with tenant callback endpoints rooted at
// baseURL. A non-positive timeout falls back to DefaultTimeout.
func NewEngine(baseURL string, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

// CallbackURL returns the tenant's authorization-code callback endpoint.
func (e *Engine) CallbackURL(teamID string) string {
	return fmt.Sprintf("%s/sso/oidc/%s/callback", e.baseURL, teamID)
}

func (e *Engine) oauth2Config(cfg Config) *oauth2.Config {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  e.CallbackURL(cfg.TeamID),
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthorizationEndpoint(),
			TokenURL: cfg.TokenEndpoint(),
		},
	}
}

// BuildAuthorizationURL constructs the authorize redirect with
// cryptographically random state and nonce values.
func (e *Engine) BuildAuthorizationURL(cfg Config) (*Authorization, error) {
	state, err := randomToken()
	if err != nil {
		return nil, err
	}
	nonce, err := randomToken()
	if err != nil {
		return nil, err
	}

	redirectURL := e.oauth2Config(cfg).AuthCodeURL(state, gooidc.Nonce(nonce))
	return &Authorization{
		RedirectURL: redirectURL,
		State:       state,
		Nonce:       nonce,
	}, nil
}

// ExchangeCode trades an authorization code for tokens via a
// form-encoded POST to the token endpoint.
func (e *Engine) ExchangeCode(ctx context.Context, cfg Config, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	token, err := e.oauth2Config(cfg).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oidc: token exchange failed: %w", err)
	}
	return token, nil
}

// FetchUserInfo performs a bearer-authenticated GET against the
// userinfo endpoint and returns the raw claim set.
func (e *Engine) FetchUserInfo(ctx context.Context, cfg Config, accessToken string) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.UserInfoEndpoint(), nil)
	if err != nil {
		return nil, fmt.Errorf("oidc: failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oidc: userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("oidc: userinfo request failed with status %d", resp.StatusCode)
	}

	var claims map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("oidc: failed to decode userinfo response: %w", err)
	}
	return claims, nil
}

// Authenticate runs the callback half of the flow: code exchange, ID
// token nonce check, userinfo fetch, and claim mapping.
func (e *Engine) Authenticate(ctx context.Context, cfg Config, code, nonce string, mapping map[string]string) (*identity.External, error) {
	token, err := e.ExchangeCode(ctx, cfg, code)
	if err != nil {
		return nil, err
	}
	if err := checkIDTokenNonce(ctx, cfg, token, nonce); err != nil {
		return nil, err
	}

	claims, err := e.FetchUserInfo(ctx, cfg, token.AccessToken)
	if err != nil {
		return nil, err
	}

	return MapClaims(claims, mapping)
}

// checkIDTokenNonce binds a returned ID token back to the login flow
// that requested it. Identity always comes from the userinfo endpoint
// over the code-exchange channel, so the token is checked for issuer,
// audience, expiry, and nonce without the discovery round trip a full
// signature verification would need. Providers that return no ID token
// are tolerated.
func checkIDTokenNonce(ctx context.Context, cfg Config, token *oauth2.Token, nonce string) error {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" || nonce == "" {
		return nil
	}

	verifier := gooidc.NewVerifier(cfg.Issuer, nil, &gooidc.Config{
		ClientID:                   cfg.ClientID,
		InsecureSkipSignatureCheck: true,
	})
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return fmt.Errorf("oidc: id token rejected: %w", err)
	}
	if idToken.Nonce != nonce {
		return fmt.Errorf("oidc: id token nonce does not match the login flow")
	}
	return nil
}

// Discover fetches {issuer}/.well-known/openid-configuration. Used by
// connection tests; login flows rely on the configured or derived
// endpoints instead.
func (e *Engine) Discover(ctx context.Context, issuer string) (*Discovery, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	ctx = gooidc.ClientContext(ctx, e.httpClient)

	provider, err := gooidc.NewProvider(ctx, strings.TrimRight(issuer, "/"))
	if err != nil {
		return nil, fmt.Errorf("oidc: discovery failed: %w", err)
	}

	var extra struct {
		UserinfoEndpoint string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, fmt.Errorf("oidc: failed to read discovery document: %w", err)
	}

	endpoint := provider.Endpoint()
	return &Discovery{
		Issuer:                issuer,
		AuthorizationEndpoint: endpoint.AuthURL,
		TokenEndpoint:         endpoint.TokenURL,
		UserInfoEndpoint:      extra.UserinfoEndpoint,
	}, nil
}

// Validate checks the structural requirements of a configuration.
func (e *Engine) Validate(cfg Config) error {
	if cfg.Issuer == "" {
		return fmt.Errorf("oidc: issuer is required")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("oidc: client_id is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("oidc: client_secret is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	for _, scope := range scopes {
		if scope == "openid" {
			return nil
		}
	}
	return fmt.Errorf("oidc: 'openid' scope is required")
}

// randomToken returns 32 bytes of cryptographic randomness, hex encoded.
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("oidc: failed to generate random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
