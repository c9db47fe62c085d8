package auth

import "net/url"

// LogoutURL builds the sign-out redirect target: oauth2-proxy's
// /oauth2/sign_out endpoint clears its cookies, then its rd parameter
// sends the browser to the Keycloak end-session endpoint, which finally
// redirects back to the application.
func LogoutURL(keycloakURL, realm, appURL string) string {
	keycloakLogout := keycloakURL + "/realms/" + realm + "/protocol/openid-connect/logout"
	if appURL != "" {
		keycloakLogout += "?" + url.Values{"redirect_uri": {appURL}}.Encode()
	}

	signOut := "/oauth2/sign_out"
	if keycloakLogout != "" {
		signOut += "?rd=" + url.QueryEscape(keycloakLogout)
	}
	return signOut
}
