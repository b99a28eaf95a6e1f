package sso

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/lnkhq/fedgate/pkg/httputil"
	"github.com/lnkhq/fedgate/pkg/observability"
)

// SessionCookie carries the gateway session ID in browsers.
const SessionCookie = "fedgate_session"

// Handlers exposes the SSO service over HTTP.
type Handlers struct {
	service *Service
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewHandlers creates a new Handlers.
func NewHandlers(service *Service, logger *observability.Logger, metrics *observability.Metrics) *Handlers {
	return &Handlers{service: service, logger: logger, metrics: metrics}
}

// RegisterRoutes attaches the admin API and the browser-facing login
// endpoints to the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	// Admin API.
	r.HandleFunc("/api/v1/teams/{teamId}/sso/configurations", h.CreateConfig).Methods("POST")
	r.HandleFunc("/api/v1/teams/{teamId}/sso/configurations/metadata", h.CreateConfigFromMetadata).Methods("POST")
	r.HandleFunc("/api/v1/teams/{teamId}/sso/configurations", h.ListConfigs).Methods("GET")
	r.HandleFunc("/api/v1/teams/{teamId}/sso/sync", h.SyncUsers).Methods("POST")
	r.HandleFunc("/api/v1/sso/configurations/{id}", h.GetConfig).Methods("GET")
	r.HandleFunc("/api/v1/sso/configurations/{id}", h.UpdateConfig).Methods("PUT")
	r.HandleFunc("/api/v1/sso/configurations/{id}", h.DeleteConfig).Methods("DELETE")
	r.HandleFunc("/api/v1/sso/configurations/{id}/activate", h.ActivateConfig).Methods("POST")
	r.HandleFunc("/api/v1/sso/configurations/{id}/deactivate", h.DeactivateConfig).Methods("POST")
	r.HandleFunc("/api/v1/sso/configurations/{id}/test", h.TestConnection).Methods("POST")
	r.HandleFunc("/api/v1/sso/metadata", h.SPMetadata).Methods("GET")
	r.HandleFunc("/api/v1/sso/discover", h.Discover).Methods("POST")
	r.HandleFunc("/api/v1/sessions/{id}", h.GetSession).Methods("GET")
	r.HandleFunc("/api/v1/users/{userId}/sessions", h.ListSessions).Methods("GET")

	// Browser login surface.
	r.HandleFunc("/sso/saml/{teamId}/login", h.SAMLLogin).Methods("GET")
	r.HandleFunc("/sso/saml/{teamId}/acs", h.SAMLCallback).Methods("POST")
	r.HandleFunc("/sso/saml/{teamId}/slo", h.SAMLLogoutCallback).Methods("POST")
	r.HandleFunc("/sso/oidc/{teamId}/login", h.OIDCLogin).Methods("GET")
	r.HandleFunc("/sso/oidc/{teamId}/callback", h.OIDCCallback).Methods("GET")
	r.HandleFunc("/sso/ldap/{teamId}/login", h.LDAPLogin).Methods("POST")
	r.HandleFunc("/sso/logout", h.Logout).Methods("POST")
}

// CreateConfig handles POST /api/v1/teams/{teamId}/sso/configurations
func (h *Handlers) CreateConfig(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamId")
	if !ok {
		return
	}

	var cfg Configuration
	if !httputil.ParseJSONOrError(w, r, &cfg) {
		return
	}
	cfg.TeamID = teamID

	created, err := h.service.CreateConfig(&cfg)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.ConfigOperationsTotal.WithLabelValues("create").Inc()
	httputil.WriteCreated(w, created.Redacted())
}

type metadataConfigRequest struct {
	MetadataXML      string            `json:"metadataXml"`
	Domains          []string          `json:"domains,omitempty"`
	AutoProvision    bool              `json:"autoProvision"`
	DefaultRole      string            `json:"defaultRole,omitempty"`
	AttributeMapping map[string]string `json:"attributeMapping,omitempty"`
}

// CreateConfigFromMetadata handles POST /api/v1/teams/{teamId}/sso/configurations/metadata
func (h *Handlers) CreateConfigFromMetadata(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamId")
	if !ok {
		return
	}

	var req metadataConfigRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.MetadataXML, "metadataXml") {
		return
	}

	cfg := &Configuration{
		TeamID:           teamID,
		Domains:          req.Domains,
		AutoProvision:    req.AutoProvision,
		DefaultRole:      req.DefaultRole,
		AttributeMapping: req.AttributeMapping,
	}
	created, err := h.service.CreateSAMLConfigFromMetadata(cfg, []byte(req.MetadataXML))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.ConfigOperationsTotal.WithLabelValues("create").Inc()
	httputil.WriteCreated(w, created.Redacted())
}

// ListConfigs handles GET /api/v1/teams/{teamId}/sso/configurations
func (h *Handlers) ListConfigs(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamId")
	if !ok {
		return
	}

	configs, err := h.service.ListConfigs(teamID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	redacted := make([]*Configuration, 0, len(configs))
	for _, cfg := range configs {
		redacted = append(redacted, cfg.Redacted())
	}
	httputil.WriteSuccess(w, map[string]interface{}{"configurations": redacted})
}

// GetConfig handles GET /api/v1/sso/configurations/{id}
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	cfg, err := h.service.GetConfig(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, cfg.Redacted())
}

// UpdateConfig handles PUT /api/v1/sso/configurations/{id}
func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var update ConfigUpdate
	if !httputil.ParseJSONOrError(w, r, &update) {
		return
	}

	updated, err := h.service.UpdateConfig(id, &update)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.ConfigOperationsTotal.WithLabelValues("update").Inc()
	httputil.WriteSuccess(w, updated.Redacted())
}

// DeleteConfig handles DELETE /api/v1/sso/configurations/{id}
func (h *Handlers) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteConfig(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.ConfigOperationsTotal.WithLabelValues("delete").Inc()
	httputil.WriteNoContent(w)
}

// ActivateConfig handles POST /api/v1/sso/configurations/{id}/activate
func (h *Handlers) ActivateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.ActivateConfig(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.ConfigOperationsTotal.WithLabelValues("activate").Inc()
	httputil.WriteSuccessMessage(w, "configuration activated", nil)
}

// DeactivateConfig handles POST /api/v1/sso/configurations/{id}/deactivate
func (h *Handlers) DeactivateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeactivateConfig(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.ConfigOperationsTotal.WithLabelValues("deactivate").Inc()
	httputil.WriteSuccessMessage(w, "configuration deactivated", nil)
}

// TestConnection handles POST /api/v1/sso/configurations/{id}/test
func (h *Handlers) TestConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	result, err := h.service.TestConnection(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// SPMetadata handles GET /api/v1/sso/metadata?teamId=...
func (h *Handlers) SPMetadata(w http.ResponseWriter, r *http.Request) {
	teamID := httputil.ParseQueryString(r, "teamId", "")
	metadataXML, err := h.service.SPMetadata(teamID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.WriteHeader(http.StatusOK)
	w.Write(metadataXML)
}

type discoverRequest struct {
	Email string `json:"email"`
}

// Discover handles POST /api/v1/sso/discover
func (h *Handlers) Discover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	result, err := h.service.Discover(req.Email)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if result.HasSSO {
		h.metrics.DiscoveryLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		h.metrics.DiscoveryLookupsTotal.WithLabelValues("miss").Inc()
	}
	httputil.WriteSuccess(w, result)
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	session, err := h.service.GetSession(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, session)
}

// ListSessions handles GET /api/v1/users/{userId}/sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	sessions, err := h.service.ListSessions(userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"sessions": sessions})
}

// SyncUsers handles POST /api/v1/teams/{teamId}/sso/sync
func (h *Handlers) SyncUsers(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamId")
	if !ok {
		return
	}

	report, err := h.service.SyncLDAPUsers(teamID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.SyncedUsersTotal.WithLabelValues("created").Add(float64(report.Created))
	h.metrics.SyncedUsersTotal.WithLabelValues("updated").Add(float64(report.Updated))
	h.metrics.SyncedUsersTotal.WithLabelValues("linked").Add(float64(report.Linked))
	httputil.WriteSuccess(w, report)
}

// SAMLLogin handles GET /sso/saml/{teamId}/login
func (h *Handlers) SAMLLogin(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamId")
	if !ok {
		return
	}

	redirectURL, err := h.service.InitiateSAMLLogin(r.Context(), teamID, localRedirect(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.FlowsStartedTotal.WithLabelValues(string(ProviderSAML)).Inc()
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// SAMLCallback handles POST /sso/saml/{teamId}/acs
func (h *Handlers) SAMLCallback(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamId")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		httputil.WriteBadRequest(w, "invalid form body")
		return
	}
	samlResponse := r.PostFormValue("SAMLResponse")
	if samlResponse == "" {
		httputil.WriteBadRequest(w, "SAMLResponse is required")
		return
	}

	outcome, err := h.service.HandleSAMLCallback(r.Context(), teamID, samlResponse, r.PostFormValue("RelayState"))
	if err != nil {
		h.writeLoginError(w, err)
		return
	}
	h.finishBrowserLogin(w, r, outcome)
}

// SAMLLogoutCallback handles POST /sso/saml/{teamId}/slo
func (h *Handlers) SAMLLogoutCallback(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamId")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		httputil.WriteBadRequest(w, "invalid form body")
		return
	}
	samlResponse := r.PostFormValue("SAMLResponse")
	if samlResponse == "" {
		httputil.WriteBadRequest(w, "SAMLResponse is required")
		return
	}

	if err := h.service.HandleSAMLLogoutCallback(teamID, samlResponse); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.clearSessionCookie(w)
	httputil.WriteNoContent(w)
}

// OIDCLogin handles GET /sso/oidc/{teamId}/login
func (h *Handlers) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamId")
	if !ok {
		return
	}

	redirectURL, err := h.service.InitiateOIDCLogin(r.Context(), teamID, localRedirect(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.FlowsStartedTotal.WithLabelValues(string(ProviderOIDC)).Inc()
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// OIDCCallback handles GET /sso/oidc/{teamId}/callback
func (h *Handlers) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamId")
	if !ok {
		return
	}

	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		httputil.WriteBadRequest(w, "code and state are required")
		return
	}

	outcome, err := h.service.HandleOIDCCallback(r.Context(), teamID, code, state)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}
	h.finishBrowserLogin(w, r, outcome)
}

type ldapLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LDAPLogin handles POST /sso/ldap/{teamId}/login
func (h *Handlers) LDAPLogin(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "teamId")
	if !ok {
		return
	}

	var req ldapLoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	outcome, err := h.service.AuthenticateLDAP(r.Context(), teamID, req.Username, req.Password)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	h.metrics.LoginsTotal.WithLabelValues(string(ProviderLDAP), string(outcome.Outcome)).Inc()
	h.setSessionCookie(w, outcome.Session)
	httputil.WriteSuccess(w, outcome)
}

// Logout handles POST /sso/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		httputil.WriteUnauthorized(w, "no active session")
		return
	}

	sloURL, err := h.service.Logout(r.Context(), cookie.Value)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.clearSessionCookie(w)
	if sloURL != "" {
		httputil.WriteSuccess(w, map[string]string{"sloUrl": sloURL})
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) finishBrowserLogin(w http.ResponseWriter, r *http.Request, outcome *LoginOutcome) {
	h.metrics.LoginsTotal.WithLabelValues(string(outcome.Session.Provider), string(outcome.Outcome)).Inc()
	h.setSessionCookie(w, outcome.Session)
	http.Redirect(w, r, outcome.RedirectTarget, http.StatusFound)
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case IsValidation(err):
		httputil.WriteValidationError(w, err.Error())
	case IsConflict(err):
		httputil.WriteConflict(w, err.Error())
	case IsNotFound(err):
		httputil.WriteNotFoundError(w, err.Error())
	case IsProtocol(err):
		h.logger.WithError(err).Warn("authentication rejected")
		httputil.WriteUnauthorized(w, "authentication failed")
	case IsNetwork(err):
		h.logger.WithError(err).Error("upstream identity provider unreachable")
		httputil.WriteErrorMessage(w, http.StatusBadGateway, "identity provider is unreachable")
	default:
		h.logger.WithError(err).Error("sso request failed")
		httputil.WriteInternalError(w, err)
	}
}

// writeLoginError hides the failure cause from login responses so the
// endpoints cannot be used as an oracle.
func (h *Handlers) writeLoginError(w http.ResponseWriter, err error) {
	if IsProtocol(err) || IsNetwork(err) {
		h.metrics.LoginFailuresTotal.WithLabelValues(failedProvider(err)).Inc()
		h.logger.WithError(err).Warn("login attempt rejected")
		httputil.WriteUnauthorized(w, "authentication failed")
		return
	}
	h.writeServiceError(w, err)
}

func failedProvider(err error) string {
	var protocolErr *ProtocolError
	if errors.As(err, &protocolErr) {
		return string(protocolErr.Provider)
	}
	return "unknown"
}

// localRedirect returns the post-login redirect requested by the
// caller, restricted to local paths.
func localRedirect(r *http.Request) string {
	target := r.URL.Query().Get("redirect")
	if target == "" || target[0] != '/' || (len(target) > 1 && target[1] == '/') {
		return ""
	}
	return target
}
