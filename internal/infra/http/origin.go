package http

import (
	"log"
	"strings"

	"machineid/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	// headerTrustedMetadata is stamped by the metadata front end on
	// requests it relayed directly from a node's link-local interface.
	headerTrustedMetadata = "X-Trusted-Metadata"
	// headerNodeID carries the node identity the front end already
	// authenticated via the client certificate.
	headerNodeID = "X-Node-ID"
)

// forwardingHeaders indicate the request transited a proxy, which the
// direct node-to-front-end path never does.
var forwardingHeaders = []string{"X-Forwarded-For", "Forwarded", "X-Forwarded-Host"}

// requireTrustedOrigin fails closed: the trusted-metadata marker must be
// present and no forwarding header may be. Runs before rate limiting,
// signing, or any persistence access.
func (s *Server) requireTrustedOrigin(c *gin.Context) bool {
	if !strings.EqualFold(c.GetHeader(headerTrustedMetadata), "true") {
		log.Printf("identity request without trusted-metadata marker from %s", c.ClientIP())
		writeError(c, domain.ErrOriginRejected)
		return false
	}
	for _, header := range forwardingHeaders {
		if c.GetHeader(header) != "" {
			log.Printf("identity request with forwarding header %s from %s, possible SSRF", header, c.ClientIP())
			writeError(c, domain.ErrOriginRejected)
			return false
		}
	}
	return true
}
