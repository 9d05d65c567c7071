package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"machineid/internal/domain"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type identityRequest struct {
	Audience []string `json:"audience"`
}

type delegationRequest struct {
	TokenEndpoint         string   `json:"token_endpoint"`
	AuthMethod            string   `json:"auth_method"`
	ClientID              string   `json:"client_id"`
	ClientSecret          string   `json:"client_secret"`
	SubjectTokenAudiences []string `json:"subject_token_audiences"`
	Enabled               bool     `json:"enabled"`
}

// delegationResponse never carries the client secret.
type delegationResponse struct {
	TokenEndpoint         string   `json:"token_endpoint"`
	AuthMethod            string   `json:"auth_method"`
	ClientID              string   `json:"client_id,omitempty"`
	SubjectTokenAudiences []string `json:"subject_token_audiences,omitempty"`
	Enabled               bool     `json:"enabled"`
	UpdatedAt             string   `json:"updated_at,omitempty"`
}

type adminNodeRequest struct {
	NodeID         string `json:"node_id"`
	OrganizationID string `json:"organization_id"`
	SiteID         string `json:"site_id"`
}

func scopeFromParams(c *gin.Context) domain.TenantScope {
	return domain.TenantScope{
		OrganizationID: c.Param("org"),
		SiteID:         c.Param("site"),
	}
}

func (s *Server) handleIdentityToken(c *gin.Context) {
	if !s.requireTrustedOrigin(c) {
		return
	}
	if s.identity == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	nodeID := strings.TrimSpace(c.GetHeader(headerNodeID))
	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}

	resp, decision, err := s.identity.HandleRequest(c.Request.Context(), nodeID, req.Audience)
	writeRateLimitHeaders(c, decision)
	if err != nil {
		writeError(c, err)
		return
	}

	if strings.Contains(c.GetHeader("Accept"), "text/plain") {
		c.String(http.StatusOK, resp.AccessToken)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAdminPutDelegation(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.delegation == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req delegationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	cfg := domain.TokenDelegationConfig{
		Scope:                 scopeFromParams(c),
		TokenEndpoint:         req.TokenEndpoint,
		AuthMethod:            domain.AuthMethod(req.AuthMethod),
		ClientID:              req.ClientID,
		ClientSecret:          req.ClientSecret,
		SubjectTokenAudiences: req.SubjectTokenAudiences,
		Enabled:               req.Enabled,
	}
	if err := s.delegation.Put(c.Request.Context(), cfg); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAdminGetDelegation(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.delegation == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	cfg, err := s.delegation.Get(c.Request.Context(), scopeFromParams(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := delegationResponse{
		TokenEndpoint:         cfg.TokenEndpoint,
		AuthMethod:            string(cfg.AuthMethod),
		ClientID:              cfg.ClientID,
		SubjectTokenAudiences: cfg.SubjectTokenAudiences,
		Enabled:               cfg.Enabled,
	}
	if !cfg.UpdatedAt.IsZero() {
		out.UpdatedAt = cfg.UpdatedAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAdminDeleteDelegation(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.delegation == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	if err := s.delegation.Delete(c.Request.Context(), scopeFromParams(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAdminKeysAction(c *gin.Context) {
	segment := c.Param("keys_action")
	parts := strings.SplitN(segment, ":", 2)
	if len(parts) != 2 || parts[0] != "keys" {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "unknown action")
		return
	}
	switch parts[1] {
	case "rotate":
		s.handleAdminRotateKey(c)
	default:
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "unknown action")
	}
}

func (s *Server) handleAdminRotateKey(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.keys == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req struct {
		Alg string `json:"alg"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
			return
		}
	}
	kid, err := s.keys.CreateKey(c.Request.Context(), scopeFromParams(c), req.Alg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kid": kid})
}

func (s *Server) handleAdminCreateNode(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.nodes == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req adminNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if req.NodeID == "" || req.OrganizationID == "" || req.SiteID == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "node_id, organization_id, and site_id are required")
		return
	}
	node := domain.Node{
		ID: req.NodeID,
		Scope: domain.TenantScope{
			OrganizationID: req.OrganizationID,
			SiteID:         req.SiteID,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.nodes.Create(c.Request.Context(), node); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleJWKS(c *gin.Context) {
	if s.jwks == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	set, err := s.jwks.BuildJWKS(c.Request.Context(), scopeFromParams(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, set)
}

func (s *Server) handleOIDCConfig(c *gin.Context) {
	if s.jwks == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	doc, err := s.jwks.BuildOIDCConfig(c.Request.Context(), scopeFromParams(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
		return false
	}
	key := c.GetHeader("X-Admin-Key")
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	message := err.Error()
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrInvalidAudience):
		status, code = http.StatusBadRequest, "INVALID_AUDIENCE"
	case errors.Is(err, domain.ErrUnsupportedAuthMethod):
		status, code = http.StatusBadRequest, "UNSUPPORTED_AUTH_METHOD"
	case errors.Is(err, domain.ErrEndpointRejected):
		status, code = http.StatusBadRequest, "ENDPOINT_REJECTED"
	case errors.Is(err, domain.ErrOriginRejected):
		status, code = http.StatusForbidden, "ORIGIN_REJECTED"
	case errors.Is(err, domain.ErrRateLimited):
		status, code = http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, domain.ErrUnknownNode):
		status, code = http.StatusNotFound, "UNKNOWN_NODE"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUpstreamRejected):
		status, code = http.StatusUnauthorized, "EXCHANGE_REJECTED"
	case errors.Is(err, domain.ErrUpstreamUnreachable):
		status, code = http.StatusBadGateway, "EXCHANGE_UNREACHABLE"
	case errors.Is(err, domain.ErrMalformedUpstreamResponse):
		status, code = http.StatusBadGateway, "EXCHANGE_MALFORMED"
	case errors.Is(err, domain.ErrSigningUnavailable):
		status, code, message = http.StatusInternalServerError, "SIGNING_UNAVAILABLE", "signing unavailable"
	case errors.Is(err, domain.ErrDecryptionFailed):
		// Decryption diagnostics stay out of responses.
		status, code, message = http.StatusInternalServerError, "KEY_UNAVAILABLE", "signing unavailable"
	default:
		message = "internal error"
	}
	writeErrorCode(c, status, code, message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
