// internal/middleware/auth_middleware.go
package middleware

import (
	"net/http"
	"strings"

	"chakula-service/internal/domain/user"
	xerrors "chakula-service/internal/pkg/errors"
	"chakula-service/internal/pkg/response"
	"chakula-service/internal/service/auth"

	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware.
const (
	ctxPrincipal   = "principal"
	ctxAccessToken = "access_token"
)

type AuthMiddleware struct {
	authService *auth.Service
}

func NewAuthMiddleware(authService *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// Auth runs the full gatekeeper pipeline and attaches the principal to the
// request context. Every failure maps to a stable machine-readable code.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.ErrorCode(c, http.StatusUnauthorized, xerrors.CodeUnauthenticated, "missing authorization token")
			return
		}

		p, err := m.authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			respondAuthError(c, err)
			return
		}

		c.Set(ctxPrincipal, p)
		c.Set(ctxAccessToken, token)
		c.Next()
	}
}

// OptionalAuth attaches a principal when a valid credential is present and
// lets the request through anonymously otherwise. Handlers behind it must
// check IsAuthenticated before trusting the context.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		p, err := m.authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.Next()
			return
		}

		c.Set(ctxPrincipal, p)
		c.Set(ctxAccessToken, token)
		c.Next()
	}
}

// RequireRole requires the authenticated principal to hold one of the given
// roles. MUST be used after Auth().
func (m *AuthMiddleware) RequireRole(roles ...user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			response.ErrorCode(c, http.StatusUnauthorized, xerrors.CodeUnauthenticated, "authentication required")
			return
		}

		for _, role := range roles {
			if p.Role == role {
				c.Next()
				return
			}
		}

		response.Forbidden(c, "insufficient permissions")
	}
}

// respondAuthError translates gatekeeper errors into HTTP statuses and
// machine codes. Messages stay generic; detail lives in the audit ledger.
func respondAuthError(c *gin.Context, err error) {
	switch {
	case xerrors.Is(err, xerrors.ErrTokenExpired):
		response.ErrorCode(c, http.StatusUnauthorized, xerrors.CodeTokenExpired, "token expired")
	case xerrors.Is(err, xerrors.ErrTokenRevoked):
		response.ErrorCode(c, http.StatusUnauthorized, xerrors.CodeTokenRevoked, "token revoked")
	case xerrors.Is(err, xerrors.ErrSessionInvalid):
		response.ErrorCode(c, http.StatusUnauthorized, xerrors.CodeSessionInvalid, "session expired or invalid")
	case xerrors.Is(err, xerrors.ErrRoleMismatch):
		response.ErrorCode(c, http.StatusUnauthorized, xerrors.CodeRoleMismatch, "credential no longer valid, sign in again")
	case xerrors.Is(err, xerrors.ErrAccountInactive):
		response.ErrorCode(c, http.StatusForbidden, xerrors.CodeAccountInactive, "account inactive")
	case xerrors.Is(err, xerrors.ErrAccountSuspended):
		response.ErrorCode(c, http.StatusForbidden, xerrors.CodeAccountSuspended, "account suspended")
	case xerrors.Is(err, xerrors.ErrTokenInvalid):
		response.ErrorCode(c, http.StatusUnauthorized, xerrors.CodeUnauthenticated, "invalid token")
	default:
		response.Error(c, http.StatusInternalServerError, "authentication unavailable", nil)
	}
}

// extractToken pulls the bearer token from the Authorization header, falling
// back to the query string for websocket clients that cannot set headers.
func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("access_token")
}
