package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Claims are the JWT claims the Keplero API gateway mints for users
type Claims struct {
	UserID      uint `json:"user_id"`
	WorkspaceID uint `json:"workspace_id"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates gateway-issued JWTs and exposes caller identity
// to handlers via fiber locals.
type AuthMiddleware struct {
	secret []byte
	logger *zap.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(secret string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		logger: logger,
	}
}

// RequireAuth is middleware that validates JWT tokens
func (m *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		m.logger.Warn("Missing Authorization header", zap.String("path", c.Path()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing Authorization header",
		})
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		m.logger.Warn("Invalid Authorization header format", zap.String("path", c.Path()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid Authorization header format",
		})
	}

	claims, err := m.parseToken(parts[1])
	if err != nil {
		m.logger.Warn("Token validation failed", zap.Error(err), zap.String("path", c.Path()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	c.Locals("userID", claims.UserID)
	c.Locals("workspaceID", claims.WorkspaceID)

	return c.Next()
}

func (m *AuthMiddleware) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.WorkspaceID == 0 {
		return nil, fmt.Errorf("token missing workspace_id")
	}

	return claims, nil
}

// RequireInternalToken guards service-to-service endpoints. Other Keplero
// services authenticate with a shared token instead of a user JWT.
func (m *AuthMiddleware) RequireInternalToken(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" || c.Get("X-Internal-Token") != token {
			m.logger.Warn("Invalid internal token", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid internal token",
			})
		}
		return c.Next()
	}
}
