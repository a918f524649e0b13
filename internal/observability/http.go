package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ClientMeta is what a connection tells us about its origin before admission.
type ClientMeta struct {
	DeviceID  string
	IP        string
	RequestID string
}

// ClientMetaFromRequest collects origin headers. A missing request id is
// minted so every ws event of one connection correlates.
func ClientMetaFromRequest(r *http.Request) ClientMeta {
	requestID := RequestIDFromRequest(r)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return ClientMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        IPFromRequest(r),
		RequestID: requestID,
	}
}

func RequestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-Id"))
}

// IPFromRequest prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the socket peer.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
