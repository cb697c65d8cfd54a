// internal/middleware/helpers.go
package middleware

import (
	"chakula-service/internal/domain/user"
	"chakula-service/internal/service/auth"

	"github.com/gin-gonic/gin"
)

// GetPrincipal gets the authenticated principal from context.
func GetPrincipal(c *gin.Context) (*auth.Principal, bool) {
	v, exists := c.Get(ctxPrincipal)
	if !exists {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok
}

// MustGetPrincipal gets the principal from context or panics. Only for use
// behind Auth().
func MustGetPrincipal(c *gin.Context) *auth.Principal {
	p, ok := GetPrincipal(c)
	if !ok {
		panic("principal not found in context")
	}
	return p
}

// GetAccessToken returns the raw bearer token the request carried.
func GetAccessToken(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxAccessToken)
	if !exists {
		return "", false
	}
	token, ok := v.(string)
	return token, ok
}

// IsAuthenticated checks if the request carries a verified principal.
func IsAuthenticated(c *gin.Context) bool {
	_, ok := GetPrincipal(c)
	return ok
}

// HasRole checks the principal's stored role.
func HasRole(c *gin.Context, role user.Role) bool {
	p, ok := GetPrincipal(c)
	return ok && p.Role == role
}

// IsAdmin checks if the principal is an admin.
func IsAdmin(c *gin.Context) bool {
	return HasRole(c, user.RoleAdmin)
}
