package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"sqlspeak-console/internal/domain"
)

// AccountFromClaims builds an account from token claims. The object ID (oid)
// wins over the subject, mirroring how the query service identifies users.
func AccountFromClaims(claims map[string]interface{}) (domain.Account, error) {
	str := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := claims[k].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}

	id := str("oid", "sub")
	if id == "" {
		return domain.Account{}, fmt.Errorf("token missing oid/sub")
	}
	username := str("preferred_username", "upn", "email", "unique_name")
	name := str("name")
	if name == "" {
		name = username
	}
	return domain.Account{ID: id, Username: username, Name: name}, nil
}

// AccountFromAccessToken reads the account from a JWT access token without
// verifying it. The token is only inspected for display; the query service
// performs the actual validation.
func AccountFromAccessToken(raw string) (domain.Account, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return domain.Account{}, fmt.Errorf("parse access token: %w", err)
	}
	return AccountFromClaims(claims)
}
