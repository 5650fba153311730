package proxy

import (
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/version"
)

var (
	proxiedByHeader = version.UserAgent()
	viaHeader       = "1.1 " + version.Name + "/" + version.Version
)

// RFC 7230 section 6.1
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// credentials meant for the gateway never reach a backend
var sensitiveHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Api-Key",
	"X-Auth-Token",
	"Proxy-Authorization",
}

func isHopByHopHeader(header string) bool {
	return slices.ContainsFunc(hopByHopHeaders, func(h string) bool {
		return strings.EqualFold(h, header)
	})
}

func isSensitiveHeader(header string) bool {
	return slices.Contains(sensitiveHeaders, http.CanonicalHeaderKey(header))
}

// CopyHeaders builds the upstream request headers from the client's.
// Content-Length and Content-Type are not copied: the body may have been
// pinned or translated, so they are set from the outgoing body instead.
func CopyHeaders(proxyReq *http.Request, clientHeader http.Header, remoteAddr string, tls bool) {
	proxyReq.Header = make(http.Header, len(clientHeader)+6)
	for header, values := range clientHeader {
		if isHopByHopHeader(header) || isSensitiveHeader(header) {
			continue
		}
		switch http.CanonicalHeaderKey(header) {
		case "Content-Length", "Content-Type", "Accept-Encoding", "Host":
			continue
		}
		proxyReq.Header[header] = slices.Clone(values)
	}

	proxyReq.Header.Set("User-Agent", proxiedByHeader)
	proxyReq.Header.Set("X-Proxied-By", proxiedByHeader)
	if via := clientHeader.Get("Via"); via != "" {
		proxyReq.Header.Set("Via", via+", "+viaHeader)
	} else {
		proxyReq.Header.Set("Via", viaHeader)
	}

	clientIP := extractClientIP(clientHeader, remoteAddr)
	if clientHeader.Get("X-Real-IP") == "" && clientIP != "" {
		proxyReq.Header.Set("X-Real-IP", clientIP)
	}
	if forwarded := clientHeader.Get("X-Forwarded-For"); forwarded != "" {
		proxyReq.Header.Set("X-Forwarded-For", forwarded)
	} else if clientIP != "" {
		proxyReq.Header.Set("X-Forwarded-For", clientIP)
	}
	if clientHeader.Get("X-Forwarded-Proto") == "" {
		if tls {
			proxyReq.Header.Set("X-Forwarded-Proto", "https")
		} else {
			proxyReq.Header.Set("X-Forwarded-Proto", "http")
		}
	}
}

// copyResponseHeaders relays upstream headers that still hold after the
// body has been relayed, and translated when dialects differ.
func copyResponseHeaders(dst, src http.Header, translated, streaming bool) {
	for header, values := range src {
		if isHopByHopHeader(header) {
			continue
		}
		canonical := http.CanonicalHeaderKey(header)
		if canonical == "Content-Length" && (translated || streaming) {
			continue
		}
		if canonical == constants.ContentTypeHeader && translated {
			continue
		}
		dst[canonical] = slices.Clone(values)
	}
}

// SetResponseHeaders marks which request and backend produced a response.
func SetResponseHeaders(h http.Header, requestID string, backend *domain.Backend) {
	h.Set("X-Served-By", proxiedByHeader)
	h.Set("Via", viaHeader)
	if requestID != "" {
		h.Set(constants.HeaderRequestID, requestID)
	}
	if backend != nil {
		h.Set(constants.HeaderBackend, backend.ID)
		h.Set(constants.HeaderDialect, backend.Dialect.String())
	}
}

func extractClientIP(h http.Header, remoteAddr string) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := h.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
