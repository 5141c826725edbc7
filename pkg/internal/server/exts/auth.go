package exts

import (
	"fmt"
	"strings"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

const userLocalsKey = "user"

// AuthMiddleware verifies the access token when one is present. Requests
// without a token pass through and are refused later by EnsureAuthenticated.
func AuthMiddleware(c *fiber.Ctx) error {
	var token string
	if cookie := c.Cookies(services.CookieAccessKey); len(cookie) > 0 {
		token = cookie
	}
	if header := c.Get(fiber.HeaderAuthorization); len(header) > 0 {
		tk := strings.Replace(header, "Bearer", "", 1)
		token = strings.TrimSpace(tk)
	}
	if len(token) == 0 {
		return c.Next()
	}

	claims, err := services.DecodeJwt(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, fmt.Sprintf("invalid access token: %v", err))
	}
	if _, err := claims.UserID(); err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}

	c.Locals(userLocalsKey, claims)
	return c.Next()
}

func EnsureAuthenticated(c *fiber.Ctx) (services.PayloadClaims, error) {
	claims, ok := c.Locals(userLocalsKey).(services.PayloadClaims)
	if !ok {
		return claims, fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}
	return claims, nil
}

func EnsureGrantedPerm(c *fiber.Ctx, perm string) (services.PayloadClaims, error) {
	claims, err := EnsureAuthenticated(c)
	if err != nil {
		return claims, err
	}
	if !claims.HasPerm(perm) {
		return claims, fiber.NewError(fiber.StatusForbidden, fmt.Sprintf("missing permission: %s", perm))
	}
	return claims, nil
}

// GetCaller describes the authenticated requester for the upload pipeline.
func GetCaller(c *fiber.Ctx, claims services.PayloadClaims) services.Caller {
	id, _ := claims.UserID()
	return services.Caller{
		UserID:    id,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}
