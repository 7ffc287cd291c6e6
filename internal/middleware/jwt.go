package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/classpilot-io/AI-grading/internal/utils"
)

var (
	errMissingToken = errors.New("authorization header missing")
	errBadHeader    = errors.New("invalid authorization header")
	errBadToken     = errors.New("invalid token")
)

// JWTProtected returns a middleware that requires a valid JWT bearer token.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := authenticate(c, secret); err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}
		return c.Next()
	}
}

// JWTOptional attaches the session when a valid bearer token is present and lets
// anonymous requests through. Invalid tokens are still rejected.
func JWTOptional(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := authenticate(c, secret)
		if err != nil && !errors.Is(err, errMissingToken) {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}
		return c.Next()
	}
}

func authenticate(c *fiber.Ctx, secret string) error {
	authorization := c.Get("Authorization")
	if authorization == "" {
		return errMissingToken
	}

	const bearer = "Bearer "
	if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
		return errBadHeader
	}

	tokenString := strings.TrimSpace(authorization[len(bearer):])
	if tokenString == "" {
		return errBadToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return errBadToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errBadToken
	}

	userID, ok := extractUserIDFromClaims(claims)
	if !ok {
		return errBadToken
	}

	c.Locals("user_id", userID)
	if role := extractUserRoleFromClaims(claims); role != "" {
		c.Locals("user_role", role)
	}
	return nil
}

func extractUserIDFromClaims(claims jwt.MapClaims) (uuid.UUID, bool) {
	keys := []string{"sub", "user_id", "id"}
	for _, key := range keys {
		value, ok := claims[key].(string)
		if !ok {
			continue
		}
		if parsed, err := uuid.Parse(strings.TrimSpace(value)); err == nil && parsed != uuid.Nil {
			return parsed, true
		}
	}

	return uuid.Nil, false
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	candidates := []string{"role", "roles"}
	for _, key := range candidates {
		if value, ok := claims[key]; ok {
			if role := normalizeRole(value); role != "" {
				return role
			}
		}
	}
	return ""
}

func normalizeRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				role := strings.ToLower(strings.TrimSpace(str))
				if role != "" {
					return role
				}
			}
		}
	default:
		return ""
	}
	return ""
}

// Session is the authenticated caller bound to a request.
type Session struct {
	UserID uuid.UUID
	Role   string
}

// Authenticated reports whether the request carried a valid token.
func (s Session) Authenticated() bool {
	return s.UserID != uuid.Nil
}

// CurrentSession reads the session stored by the JWT middlewares.
func CurrentSession(c *fiber.Ctx) Session {
	var session Session
	if id, ok := c.Locals("user_id").(uuid.UUID); ok {
		session.UserID = id
	}
	session.Role = normalizeRoleValue(c.Locals("user_role"))
	return session
}
