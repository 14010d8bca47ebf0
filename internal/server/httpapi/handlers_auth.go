package httpapi

import (
	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/server/services"
	"github.com/gofiber/fiber/v2"
)

const (
	msgSignedUp       = "Account created. Check your email to verify your account."
	msgLoggedOut      = "Successfully logged out"
	msgInviteAccepted = "Invitation accepted. You can now sign in."
	msgMissingRefresh = "Refresh token missing"
)

type validator interface {
	Validate() error
}

// bind parses the JSON body into dst and validates it.
func bind(c *fiber.Ctx, dst validator) error {
	if err := c.BodyParser(dst); err != nil {
		return common.BadRequest("Invalid request body")
	}
	if err := dst.Validate(); err != nil {
		return invalid(err)
	}
	return nil
}

func (s *Server) signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	_, err := s.accounts.Signup(c.UserContext(), services.SignupInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(messageResponse{Message: msgSignedUp})
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := s.sessions.Login(c.UserContext(), req.EmailOrUsername, req.Password)
	if err != nil {
		return err
	}

	s.setAuthCookies(c, res.Tokens)
	return c.JSON(loginResponse{User: toUserResponse(res.User), Tokens: toTokenResponse(res.Tokens)})
}

// refresh takes the refresh token from the cookie, or from the body when
// the cookie is absent.
func (s *Server) refresh(c *fiber.Ctx) error {
	raw := c.Cookies(cookieRefresh)
	if raw == "" && len(c.Body()) > 0 {
		var req refreshRequest
		if err := c.BodyParser(&req); err != nil {
			return common.BadRequest("Invalid request body")
		}
		raw = req.RefreshToken
	}
	if raw == "" {
		return common.Unauthorized(msgMissingRefresh)
	}

	res, err := s.sessions.Refresh(c.UserContext(), raw)
	if err != nil {
		return err
	}

	s.setAuthCookies(c, res.Tokens)
	return c.JSON(toTokenResponse(res.Tokens))
}

func (s *Server) logout(c *fiber.Ctx) error {
	if err := s.sessions.Logout(c.UserContext(), currentUser(c)); err != nil {
		return err
	}
	s.clearAuthCookies(c)
	return c.JSON(messageResponse{Message: msgLoggedOut})
}

func (s *Server) me(c *fiber.Ctx) error {
	return c.JSON(toUserResponse(currentUser(c)))
}

func (s *Server) verify(c *fiber.Ctx) error {
	token := accessToken(c)
	if token == "" {
		return common.Unauthorized(msgNotAuthenticated)
	}

	user, err := s.sessions.VerifyAccessToken(c.UserContext(), token)
	if err != nil {
		return err
	}
	return c.JSON(verifyResponse{Valid: true, User: toUserResponse(user)})
}

func (s *Server) verifyEmail(c *fiber.Ctx) error {
	var req tokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	msg, err := s.accounts.VerifyEmail(c.UserContext(), req.Token)
	if err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: msg})
}

func (s *Server) resendVerification(c *fiber.Ctx) error {
	var req resendRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	msg, err := s.accounts.ResendVerification(c.UserContext(), req.EmailOrUsername)
	if err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: msg})
}

func (s *Server) requestPasswordReset(c *fiber.Ctx) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	msg, err := s.accounts.RequestPasswordReset(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: msg})
}

func (s *Server) confirmPasswordReset(c *fiber.Ctx) error {
	var req resetConfirmRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	msg, err := s.accounts.ConfirmPasswordReset(c.UserContext(), req.Token, req.NewPassword)
	if err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: msg})
}

func (s *Server) inviteDetail(c *fiber.Ctx) error {
	d, err := s.invites.Detail(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	return c.JSON(inviteDetailResponse{Email: d.Email, ExpiresAt: d.ExpiresAt, Accepted: d.Accepted})
}

func (s *Server) acceptInvite(c *fiber.Ctx) error {
	var req acceptInviteRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	_, err := s.invites.Accept(c.UserContext(), services.AcceptInviteInput{
		Token:    req.Token,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(messageResponse{Message: msgInviteAccepted})
}
