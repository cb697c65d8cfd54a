// internal/pkg/jwt/claims.go
package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token use markers. A refresh credential can never pass an access check.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims represents the signed claims carried by every credential.
type Claims struct {
	SubjectID int64  `json:"subject_id"`
	Role      string `json:"role"`
	TokenUse  string `json:"token_use"`
	jwt.RegisteredClaims
}

// VerifyAudience checks if the expected audience is listed in the claims.
func (c *Claims) VerifyAudience(audience string, required bool) bool {
	if len(c.Audience) == 0 {
		return !required
	}

	for _, aud := range c.Audience {
		if aud == audience {
			return true
		}
	}

	return false
}
