// internal/pkg/jwt/verifier.go
package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"

	xerrors "chakula-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

type Verifier struct {
	pub      *rsa.PublicKey
	issuer   string
	audience string
}

func NewVerifier(pub *rsa.PublicKey, issuer, audience string) *Verifier {
	return &Verifier{
		pub:      pub,
		issuer:   issuer,
		audience: audience,
	}
}

// Verify validates signature and expiry only; it never consults session or
// revocation state. Expiry failures are distinguished from malformed or
// badly-signed tokens so the gatekeeper can return a more specific code.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if v.pub == nil {
		return nil, fmt.Errorf("jwt verifier has nil public key")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.pub, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, xerrors.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", xerrors.ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, xerrors.ErrTokenInvalid
	}

	if claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: invalid issuer", xerrors.ErrTokenInvalid)
	}

	if !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: invalid audience", xerrors.ErrTokenInvalid)
	}

	return claims, nil
}

// VerifyAccess verifies that the token is an access credential.
func (v *Verifier) VerifyAccess(tokenString string) (*Claims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.TokenUse != UseAccess {
		return nil, fmt.Errorf("%w: not an access token", xerrors.ErrTokenInvalid)
	}

	return claims, nil
}

// VerifyRefresh verifies that the token is a refresh credential. Expiry maps
// to the rotation-specific error so callers surface REFRESH_TOKEN_EXPIRED.
func (v *Verifier) VerifyRefresh(tokenString string) (*Claims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		if errors.Is(err, xerrors.ErrTokenExpired) {
			return nil, xerrors.ErrRefreshTokenExpired
		}
		return nil, xerrors.ErrInvalidRefreshToken
	}

	if claims.TokenUse != UseRefresh {
		return nil, xerrors.ErrInvalidRefreshToken
	}

	return claims, nil
}
