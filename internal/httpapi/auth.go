package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Permission names a user operation a caller may be granted.
type Permission string

const (
	PermissionGet    Permission = "user:get"
	PermissionList   Permission = "user:list"
	PermissionCreate Permission = "user:create"
	PermissionUpdate Permission = "user:update"
	PermissionDelete Permission = "user:delete"
)

// AllPermissions lists every permission.
var AllPermissions = []Permission{
	PermissionGet,
	PermissionList,
	PermissionCreate,
	PermissionUpdate,
	PermissionDelete,
}

const claimsKey = "claims"

var (
	errMissingToken = errors.New("missing bearer token")
	errForbidden    = errors.New("User unauthorized to perform this action")
)

// Claims are the bearer token claims: the registered claims plus the
// caller's permission set.
type Claims struct {
	jwt.RegisteredClaims
	Permissions []string `json:"permissions"`
}

// Has reports whether the claims grant p.
func (c *Claims) Has(p Permission) bool {
	return slices.Contains(c.Permissions, string(p))
}

// NewToken signs an HS256 token for subject granting perms, valid for ttl.
func NewToken(secret []byte, subject string, ttl time.Duration, perms ...Permission) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	for _, p := range perms {
		claims.Permissions = append(claims.Permissions, string(p))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Authenticate rejects requests without a valid bearer token and stores the
// claims on the context.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			render(c, FailWith(http.StatusUnauthorized, errMissingToken))
			return
		}

		claims, err := ParseToken(strings.TrimSpace(tokenString), secret)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Debug().Err(err).Msg("rejected bearer token")
			render(c, FailWith(http.StatusUnauthorized, fmt.Errorf("invalid bearer token")))
			return
		}

		c.Set(claimsKey, claims)
		logger := zerolog.Ctx(c.Request.Context()).With().Str("subject", claims.Subject).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

// Require rejects requests whose claims do not grant p.
func Require(p Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(claimsKey)
		if !exists {
			render(c, FailWith(http.StatusUnauthorized, errMissingToken))
			return
		}

		claims, ok := value.(*Claims)
		if !ok || !claims.Has(p) {
			zerolog.Ctx(c.Request.Context()).Info().Str("permission", string(p)).Msg("permission denied")
			render(c, FailWith(http.StatusForbidden, errForbidden))
			return
		}
		c.Next()
	}
}
