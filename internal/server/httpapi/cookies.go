package httpapi

import (
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/server/auth"
	"github.com/gofiber/fiber/v2"
)

const (
	cookieAccess  = common.AccessTokenCookieName
	cookieRefresh = common.RefreshTokenCookieName
)

func (s *Server) newCookie(name, value string, ttl time.Duration) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.cookie.Path,
		Domain:   s.cookie.Domain,
		MaxAge:   int(ttl.Seconds()),
		Secure:   s.cookie.Secure,
		HTTPOnly: true,
		SameSite: s.cookie.SameSite,
	}
}

func (s *Server) setAuthCookies(c *fiber.Ctx, pair auth.TokenPair) {
	c.Cookie(s.newCookie(cookieAccess, pair.AccessToken, s.accessTTL))
	c.Cookie(s.newCookie(cookieRefresh, pair.RefreshToken, s.refreshTTL))
}

func (s *Server) clearAuthCookies(c *fiber.Ctx) {
	for _, name := range []string{cookieAccess, cookieRefresh} {
		ck := s.newCookie(name, "", 0)
		ck.Expires = time.Unix(0, 0)
		c.Cookie(ck)
	}
}
