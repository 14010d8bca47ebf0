package httpapi

import (
	"strings"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
	"github.com/gofiber/fiber/v2"
)

const (
	localUser = "user"

	msgNotAuthenticated = "Not authenticated"
	msgNotAdmin         = "Insufficient permissions"
)

// accessToken reads the bearer token, falling back to the access cookie.
func accessToken(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	return c.Cookies(cookieAccess)
}

// requireUser authenticates the request and stores the user in locals.
func (s *Server) requireUser(c *fiber.Ctx) error {
	token := accessToken(c)
	if token == "" {
		return common.Unauthorized(msgNotAuthenticated)
	}

	user, err := s.sessions.Authenticate(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.Locals(localUser, user)
	return c.Next()
}

// requireAdmin must run after requireUser.
func (s *Server) requireAdmin(c *fiber.Ctx) error {
	if !currentUser(c).IsAdmin {
		return common.Forbidden(msgNotAdmin)
	}
	return c.Next()
}

func currentUser(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(localUser).(*models.User)
	if u == nil {
		return &models.User{}
	}
	return u
}
