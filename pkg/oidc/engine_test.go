package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine() *Engine {
	return NewEngine("https://gateway.example.com", 0)
}

func testConfig() Config {
	return Config{
		ConfigID:     "cfg-1",
		TeamID:       "team-1",
		Issuer:       "https://login.example.com",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}
}

func TestBuildAuthorizationURL(t *testing.T) {
	e := testEngine()
	cfg := testConfig()

	auth, err := e.BuildAuthorizationURL(cfg)
	require.NoError(t, err)

	// 32 random bytes, hex encoded.
	assert.Len(t, auth.State, 64)
	assert.Len(t, auth.Nonce, 64)
	assert.NotEqual(t, auth.State, auth.Nonce)

	u, err := url.Parse(auth.RedirectURL)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(auth.RedirectURL, "https://login.example.com/authorize"))

	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, "https://gateway.example.com/sso/oidc/team-1/callback", q.Get("redirect_uri"))
	assert.Equal(t, auth.State, q.Get("state"))
	assert.Equal(t, auth.Nonce, q.Get("nonce"))

	again, err := e.BuildAuthorizationURL(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, auth.State, again.State)
}

func TestEndpointDerivation(t *testing.T) {
	tests := []struct {
		name          string
		config        Config
		wantAuthorize string
		wantToken     string
		wantUserInfo  string
	}{
		{
			name:          "derived from issuer",
			config:        Config{Issuer: "https://login.example.com"},
			wantAuthorize: "https://login.example.com/authorize",
			wantToken:     "https://login.example.com/oauth/token",
			wantUserInfo:  "https://login.example.com/userinfo",
		},
		{
			name:          "trailing slash stripped",
			config:        Config{Issuer: "https://login.example.com/"},
			wantAuthorize: "https://login.example.com/authorize",
			wantToken:     "https://login.example.com/oauth/token",
			wantUserInfo:  "https://login.example.com/userinfo",
		},
		{
			name: "explicit endpoints win",
			config: Config{
				Issuer:           "https://login.example.com",
				AuthorizationURL: "https://auth.example.com/oauth2/authorize",
				TokenURL:         "https://auth.example.com/oauth2/token",
				UserInfoURL:      "https://auth.example.com/oauth2/userinfo",
			},
			wantAuthorize: "https://auth.example.com/oauth2/authorize",
			wantToken:     "https://auth.example.com/oauth2/token",
			wantUserInfo:  "https://auth.example.com/oauth2/userinfo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAuthorize, tt.config.AuthorizationEndpoint())
			assert.Equal(t, tt.wantToken, tt.config.TokenEndpoint())
			assert.Equal(t, tt.wantUserInfo, tt.config.UserInfoEndpoint())
		})
	}
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.TokenURL = srv.URL + "/oauth/token"

	token, err := testEngine().ExchangeCode(context.Background(), cfg, "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "tok", token.AccessToken)
}

func TestExchangeCodeUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.TokenURL = srv.URL + "/oauth/token"

	_, err := testEngine().ExchangeCode(context.Background(), cfg, "bad-code")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "oidc:"))
}

func TestFetchUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sub":   "u1",
			"email": "a@b.com",
		})
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.UserInfoURL = srv.URL + "/userinfo"

	claims, err := testEngine().FetchUserInfo(context.Background(), cfg, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims["sub"])
	assert.Equal(t, "a@b.com", claims["email"])
}

func TestFetchUserInfoUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.UserInfoURL = srv.URL + "/userinfo"

	_, err := testEngine().FetchUserInfo(context.Background(), cfg, "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestAuthenticate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sub":   "u1",
			"email": "a@b.com",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig()
	cfg.Issuer = srv.URL

	ext, err := testEngine().Authenticate(context.Background(), cfg, "auth-code", "n-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", ext.ExternalID)
	assert.Equal(t, "a@b.com", ext.Email)
}

// unsignedIDToken builds a compact JWT carrying the given claims. The
// signature is garbage; the nonce check reads claims without verifying
// it.
func unsignedIDToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + ".c2ln"
}

func TestAuthenticateChecksIDTokenNonce(t *testing.T) {
	var issuer, idTokenNonce string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token": unsignedIDToken(t, map[string]interface{}{
				"iss":   issuer,
				"aud":   "client-id",
				"sub":   "u1",
				"exp":   time.Now().Add(time.Hour).Unix(),
				"nonce": idTokenNonce,
			}),
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"sub": "u1", "email": "a@b.com"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig()
	cfg.Issuer = srv.URL
	issuer = srv.URL

	idTokenNonce = "n-1"
	ext, err := testEngine().Authenticate(context.Background(), cfg, "auth-code", "n-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", ext.ExternalID)

	idTokenNonce = "n-replayed"
	_, err = testEngine().Authenticate(context.Background(), cfg, "auth-code", "n-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce")
}

func TestDiscover(t *testing.T) {
	var issuer string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/authorize",
			"token_endpoint":         issuer + "/oauth/token",
			"userinfo_endpoint":      issuer + "/userinfo",
			"jwks_uri":               issuer + "/keys",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	issuer = srv.URL

	disc, err := testEngine().Discover(context.Background(), issuer)
	require.NoError(t, err)
	assert.Equal(t, issuer+"/authorize", disc.AuthorizationEndpoint)
	assert.Equal(t, issuer+"/oauth/token", disc.TokenEndpoint)
	assert.Equal(t, issuer+"/userinfo", disc.UserInfoEndpoint)
}

func TestDiscoverUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testEngine().Discover(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "oidc:"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError string
	}{
		{"valid with default scopes", func(c *Config) {}, ""},
		{"valid with explicit scopes", func(c *Config) { c.Scopes = []string{"openid", "email"} }, ""},
		{"missing issuer", func(c *Config) { c.Issuer = "" }, "issuer"},
		{"missing client id", func(c *Config) { c.ClientID = "" }, "client_id"},
		{"missing client secret", func(c *Config) { c.ClientSecret = "" }, "client_secret"},
		{"missing openid scope", func(c *Config) { c.Scopes = []string{"profile", "email"} }, "openid"},
	}

	e := testEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := e.Validate(cfg)
			if tt.expectError == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
			}
		})
	}
}
