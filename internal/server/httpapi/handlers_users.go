package httpapi

import (
	"github.com/dmitrijs2005/tinyauth/internal/server/services"
	"github.com/dmitrijs2005/tinyauth/internal/timex"
	"github.com/gofiber/fiber/v2"
)

func (s *Server) listUsers(c *fiber.Ctx) error {
	list, err := s.accounts.ListUsers(c.UserContext(), c.QueryBool("include_inactive", true))
	if err != nil {
		return err
	}

	out := make([]userResponse, 0, len(list))
	for _, u := range list {
		out = append(out, toUserResponse(u))
	}
	return c.JSON(out)
}

func (s *Server) updateMe(c *fiber.Ctx) error {
	var req updateMeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := s.accounts.UpdateProfile(c.UserContext(), currentUser(c), services.ProfileUpdate{
		Email:    req.Email,
		Username: req.Username,
	})
	if err != nil {
		return err
	}
	return c.JSON(toUserResponse(user))
}

func (s *Server) changePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	msg, err := s.accounts.ChangePassword(c.UserContext(), currentUser(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		return err
	}
	s.clearAuthCookies(c)
	return c.JSON(messageResponse{Message: msg})
}

func (s *Server) setStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := s.accounts.SetActive(c.UserContext(), currentUser(c), c.Params("id"), *req.IsActive)
	if err != nil {
		return err
	}
	return c.JSON(toUserResponse(user))
}

func (s *Server) inviteUser(c *fiber.Ctx) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	inv, err := s.invites.Issue(c.UserContext(), currentUser(c), req.Email)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(inviteResponse{
		ID:              inv.ID,
		Email:           inv.Email,
		ExpiresAt:       timex.UTC(inv.ExpiresAt),
		InvitedByUserID: inv.InvitedByUserID,
		AcceptedAt:      inv.AcceptedAt,
	})
}
