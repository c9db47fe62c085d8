package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Claims decodes the payload section of a JWT without verifying the
// signature. Used only to display identity details on the profile page;
// authorization decisions never depend on it. Returns nil for anything
// that is not a well-formed three-part token.
func Claims(token string) map[string]any {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil
	}
	var claims map[string]any
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil
	}
	return claims
}

// UserInfo is the identity summary shown in the top bar and profile page.
type UserInfo struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Subject  string   `json:"sub"`
	Groups   []string `json:"groups"`
}

// UserInfoFromToken maps JWT claims to a UserInfo. A missing or
// undecodable token yields the generic authenticated-user placeholder
// rather than an error, so page rendering never fails on identity.
func UserInfoFromToken(token string) UserInfo {
	fallback := UserInfo{Username: "Authenticated User", Name: "User", Groups: []string{}}
	if token == "" {
		return fallback
	}
	claims := Claims(token)
	if claims == nil {
		return fallback
	}

	info := UserInfo{
		Username: stringClaim(claims, "preferred_username"),
		Email:    stringClaim(claims, "email"),
		Name:     stringClaim(claims, "name"),
		Subject:  stringClaim(claims, "sub"),
		Groups:   []string{},
	}
	if info.Username == "" {
		info.Username = stringClaim(claims, "username")
	}
	if info.Username == "" {
		info.Username = "User"
	}
	if info.Name == "" {
		info.Name = "User"
	}
	if groups, ok := claims["groups"].([]any); ok {
		for _, g := range groups {
			if s, ok := g.(string); ok {
				info.Groups = append(info.Groups, s)
			}
		}
	}
	return info
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}
