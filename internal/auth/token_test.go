package auth

import (
	"net/http"
	"testing"
)

func TestFromHeadersForwardedAccessToken(t *testing.T) {
	h := http.Header{}
	h.Set("X-Forwarded-Access-Token", "eyJtoken.abc.def")

	if got := FromHeaders(h); got != "eyJtoken.abc.def" {
		t.Fatalf("expected token passed through verbatim, got %q", got)
	}
}

func TestFromHeadersPriorityOrder(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer from-authorization")
	h.Set("X-Auth-Request-Access-Token", "from-auth-request")
	h.Set("X-Forwarded-Access-Token", "from-forwarded")

	if got := FromHeaders(h); got != "from-forwarded" {
		t.Fatalf("expected X-Forwarded-Access-Token to win, got %q", got)
	}

	h.Del("X-Forwarded-Access-Token")
	if got := FromHeaders(h); got != "from-auth-request" {
		t.Fatalf("expected X-Auth-Request-Access-Token next, got %q", got)
	}

	h.Del("X-Auth-Request-Access-Token")
	if got := FromHeaders(h); got != "from-authorization" {
		t.Fatalf("expected Authorization bearer value, got %q", got)
	}
}

func TestFromHeadersBearerParsing(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := FromHeaders(h); got != "" {
		t.Fatalf("non-bearer Authorization should be ignored, got %q", got)
	}

	h.Set("X-Forwarded-Authorization", "Bearer   padded-token  ")
	if got := FromHeaders(h); got != "padded-token" {
		t.Fatalf("expected trimmed forwarded bearer token, got %q", got)
	}
}

func TestFromHeadersCaseInsensitive(t *testing.T) {
	// http.Header.Set canonicalizes, but inbound requests may carry any
	// casing; Get is case-insensitive over canonical keys.
	h := http.Header{}
	h.Add("x-forwarded-access-token", "lowercase-set")
	req := &http.Request{Header: h}
	req.Header.Set("x-forwarded-access-token", "lowercase-set")

	if got := FromHeaders(req.Header); got != "lowercase-set" {
		t.Fatalf("expected case-insensitive lookup, got %q", got)
	}
}

func TestFromHeadersEmpty(t *testing.T) {
	if got := FromHeaders(http.Header{}); got != "" {
		t.Fatalf("expected empty token for empty headers, got %q", got)
	}
}

func TestUserInfoFromTokenFallback(t *testing.T) {
	info := UserInfoFromToken("")
	if info.Username != "Authenticated User" {
		t.Fatalf("expected placeholder identity, got %q", info.Username)
	}

	info = UserInfoFromToken("not-a-jwt")
	if info.Username != "Authenticated User" {
		t.Fatalf("expected placeholder for malformed token, got %q", info.Username)
	}
}

func TestClaimsDecode(t *testing.T) {
	// header.payload.signature with payload {"preferred_username":"alice","groups":["dev"]}
	token := "eyJhbGciOiJIUzI1NiJ9.eyJwcmVmZXJyZWRfdXNlcm5hbWUiOiJhbGljZSIsImdyb3VwcyI6WyJkZXYiXX0.sig"

	claims := Claims(token)
	if claims == nil {
		t.Fatal("expected claims to decode")
	}
	if claims["preferred_username"] != "alice" {
		t.Fatalf("unexpected claims: %#v", claims)
	}

	info := UserInfoFromToken(token)
	if info.Username != "alice" || len(info.Groups) != 1 || info.Groups[0] != "dev" {
		t.Fatalf("unexpected user info: %#v", info)
	}
}
