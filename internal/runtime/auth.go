// Package runtime carries shared auth plumbing: JWT issuing, verification
// and the echo middleware guarding the HTTP surface.
package runtime

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Roles known to the system. Admin implies user-level access.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Claims is the verified identity attached to a request or chat session.
type Claims struct {
	UserID string
	Role   string
}

// ErrUnauthorized is returned for missing, malformed or expired credentials.
var ErrUnauthorized = errors.New("unauthorized")

// SignJWT issues a signed HS256 token carrying the subject and role.
func SignJWT(subject, role string, secret []byte, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Verifier validates bearer credentials against the shared secret.
type Verifier struct {
	Secret []byte
}

// Verify parses and validates a token, returning the embedded claims.
func (v Verifier) Verify(token string) (Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrUnauthorized
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrUnauthorized
	}
	sub, _ := mc["sub"].(string)
	if sub == "" {
		return Claims{}, ErrUnauthorized
	}
	role, _ := mc["role"].(string)
	if role == "" {
		role = RoleUser
	}
	return Claims{UserID: sub, Role: role}, nil
}

// EchoAuthMiddleware validates JWT tokens from the Authorization header or
// the auth cookie and stores user_id/role on the echo context.
func EchoAuthMiddleware(v Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := extractToken(c)
			if tok == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			claims, err := v.Verify(tok)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			c.Set("user_id", claims.UserID)
			c.Set("role", claims.Role)
			return next(c)
		}
	}
}

// RequireAdmin guards administrative endpoints. Must run after
// EchoAuthMiddleware.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if role, _ := c.Get("role").(string); role != RoleAdmin {
				return echo.NewHTTPError(http.StatusForbidden, "admin role required")
			}
			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	if h := c.Request().Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	if ck, err := c.Cookie("auth"); err == nil {
		return ck.Value
	}
	return ""
}
