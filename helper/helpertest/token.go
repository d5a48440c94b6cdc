// Package helpertest mints access tokens for route and middleware tests.
package helpertest

import (
	"testing"
	"time"

	"marketplace/config"
	"marketplace/model"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken signs claim with JWT_SECRET the way the storefront's auth service does.
func AccessToken(t testing.TB, claim model.TokenClaim) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId":   claim.UserId,
		"username": claim.Username,
		"role":     claim.Role,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(config.Config("JWT_SECRET")))
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	return signed
}
