package auth

import (
	"net/http"
	"strings"
)

// Headers probed for a bearer credential, in priority order. The first
// two are set by oauth2-proxy (--pass-access-token / --set-xauthrequest),
// the Authorization forms by --set-authorization-header.
const (
	HeaderForwardedAccessToken   = "X-Forwarded-Access-Token"
	HeaderAuthRequestAccessToken = "X-Auth-Request-Access-Token"
	HeaderAuthorization          = "Authorization"
	HeaderForwardedAuthorization = "X-Forwarded-Authorization"
)

// FromHeaders extracts the bearer token from the request headers.
// The token is passed through byte-for-byte with no validation; the
// upstream service and the fronting proxy own validation. Returns ""
// when no header carries a token.
func FromHeaders(h http.Header) string {
	if tok := h.Get(HeaderForwardedAccessToken); tok != "" {
		return tok
	}
	if tok := h.Get(HeaderAuthRequestAccessToken); tok != "" {
		return tok
	}
	for _, name := range []string{HeaderAuthorization, HeaderForwardedAuthorization} {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(v, "Bearer "); ok {
			if tok := strings.TrimSpace(rest); tok != "" {
				return tok
			}
		}
	}
	return ""
}
