package auth

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"pos-backend/internal/config"
	"pos-backend/internal/database"
	"pos-backend/internal/models"
)

const ctxUserKey = "current_user"

// JWTMiddleware validates the bearer token and loads the acting user onto
// the request context. Later capability checks work off the database row,
// not the token, so a role change takes effect on the next request.
func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
		}

		token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		claims, ok := token.Claims.(*Claims)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "malformed token claims")
		}

		var user models.User
		if err := database.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "account no longer exists")
		}
		if !user.IsActive {
			return fiber.NewError(fiber.StatusUnauthorized, "account is disabled")
		}

		c.Locals(ctxUserKey, &user)
		return c.Next()
	}
}

// CurrentUser returns the authenticated user loaded by JWTMiddleware.
func CurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals(ctxUserKey).(*models.User)
	if !ok || user == nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "not authenticated")
	}
	return user, nil
}

// RequireRole limits a route group to the listed roles.
func RequireRole(allowed ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := CurrentUser(c)
		if err != nil {
			return err
		}
		for _, role := range allowed {
			if role == user.Role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "insufficient role for this operation")
	}
}

// RequireCapability gates a route on one entry of the capability table.
func RequireCapability(check func(models.Capabilities) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := CurrentUser(c)
		if err != nil {
			return err
		}
		if !check(user.Can()) {
			return fiber.NewError(fiber.StatusForbidden, "insufficient role for this operation")
		}
		return c.Next()
	}
}

// BranchScope resolves which branch the request may touch: admins may name
// any branch, everyone else is pinned to their own.
func BranchScope(c *fiber.Ctx, requested *uint) (uint, error) {
	user, err := CurrentUser(c)
	if err != nil {
		return 0, err
	}
	if user.Can().CanManageBranches {
		if requested != nil {
			return *requested, nil
		}
		if user.BranchID != nil {
			return *user.BranchID, nil
		}
		return 0, fiber.NewError(fiber.StatusBadRequest, "branch_id is required")
	}
	if user.BranchID == nil {
		return 0, fiber.NewError(fiber.StatusForbidden, "account is not assigned to a branch")
	}
	if requested != nil && *requested != *user.BranchID {
		return 0, fiber.NewError(fiber.StatusForbidden, "cannot act on another branch")
	}
	return *user.BranchID, nil
}
