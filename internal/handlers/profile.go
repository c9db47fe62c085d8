package handlers

import (
	"net/http"

	"playground-gateway/internal/auth"
)

// authHeaderNames are the proxy headers surfaced on the profile page so
// operators can see which credential path served the request. Values
// are redacted to presence; the token itself never leaves the server.
var authHeaderNames = []string{
	"X-Forwarded-Access-Token",
	"X-Auth-Request-Access-Token",
	"Authorization",
	"X-Forwarded-Authorization",
	"X-Forwarded-User",
	"X-Forwarded-Email",
	"X-Forwarded-Preferred-Username",
}

// Profile handles GET /profile/: the caller's identity as decoded from
// the proxy credential, plus the session endpoints.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	token := h.Provider.Token(r.Header)

	headers := map[string]string{}
	for _, name := range authHeaderNames {
		value := r.Header.Get(name)
		if value == "" {
			continue
		}
		if name == "X-Forwarded-User" || name == "X-Forwarded-Email" || name == "X-Forwarded-Preferred-Username" {
			headers[name] = value
		} else {
			headers[name] = "present"
		}
	}

	claims := auth.Claims(token)
	// The raw token never goes back to the browser.
	delete(claims, "at_hash")

	writeJSON(w, http.StatusOK, map[string]any{
		"user":                 auth.UserInfoFromToken(token),
		"claims":               claims,
		"auth_headers":         headers,
		"logout_url":           h.logoutURL(),
		"llama_stack_endpoint": h.StackEndpoint,
	})
}

// Logout handles GET|POST /profile/logout: redirects the browser into
// the proxy sign-out flow.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.logoutURL(), http.StatusFound)
}

func (h *Handler) logoutURL() string {
	return auth.LogoutURL(h.KeycloakURL, h.KeycloakRealm, h.AppURL)
}
