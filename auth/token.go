// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Expired reports whether accessToken is a JWT whose exp claim has passed.
// Opaque tokens and tokens without exp never expire here.
func Expired(accessToken string, now time.Time) bool {
	if accessToken == "" {
		return true
	}
	token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
