// Package httpapi exposes the account and session operations as a JSON
// HTTP API on fiber.
package httpapi

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/logging"
	"github.com/dmitrijs2005/tinyauth/internal/server/config"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
	"github.com/dmitrijs2005/tinyauth/internal/server/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

// Sessions is implemented by *services.SessionService.
type Sessions interface {
	Login(ctx context.Context, identifier, password string) (*services.LoginResult, error)
	Refresh(ctx context.Context, raw string) (*services.LoginResult, error)
	Logout(ctx context.Context, user *models.User) error
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
	VerifyAccessToken(ctx context.Context, accessToken string) (*models.User, error)
}

// Accounts is implemented by *services.AccountService.
type Accounts interface {
	Signup(ctx context.Context, in services.SignupInput) (*models.User, error)
	VerifyEmail(ctx context.Context, raw string) (string, error)
	ResendVerification(ctx context.Context, emailOrUsername string) (string, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ConfirmPasswordReset(ctx context.Context, raw, newPassword string) (string, error)
	ChangePassword(ctx context.Context, user *models.User, current, next string) (string, error)
	ListUsers(ctx context.Context, includeInactive bool) ([]*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User, in services.ProfileUpdate) (*models.User, error)
	SetActive(ctx context.Context, admin *models.User, targetID string, active bool) (*models.User, error)
}

// Invites is implemented by *services.InviteService.
type Invites interface {
	Issue(ctx context.Context, admin *models.User, email string) (*models.Invite, error)
	Detail(ctx context.Context, raw string) (*services.InviteDetail, error)
	Accept(ctx context.Context, in services.AcceptInviteInput) (*models.User, error)
}

// Server is the HTTP API.
type Server struct {
	app        *fiber.App
	sessions   Sessions
	accounts   Accounts
	invites    Invites
	cookie     config.CookieSettings
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        logging.Logger
}

func NewServer(cfg *config.Config, sessions Sessions, accounts Accounts, invites Invites, log logging.Logger) *Server {
	s := &Server{
		sessions:   sessions,
		accounts:   accounts,
		invites:    invites,
		cookie:     cfg.Cookie(),
		accessTTL:  cfg.AccessTokenValidityDuration,
		refreshTTL: cfg.RefreshTokenValidityDuration,
		log:        log.With("module", "http"),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               cfg.ProjectName,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	s.app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins(), ","),
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	a := s.app.Group("/api/auth")
	a.Post("/signup", s.signup)
	a.Post("/login", s.login)
	a.Post("/refresh", s.refresh)
	a.Post("/logout", s.requireUser, s.logout)
	a.Get("/me", s.requireUser, s.me)
	a.Get("/verify", s.verify)
	a.Post("/verify-email", s.verifyEmail)
	a.Post("/verify-email/resend", s.resendVerification)
	a.Post("/password/reset", s.requestPasswordReset)
	a.Post("/password/reset/confirm", s.confirmPasswordReset)
	a.Get("/invite/:token", s.inviteDetail)
	a.Post("/invite/accept", s.acceptInvite)

	u := s.app.Group("/api/users", s.requireUser)
	u.Get("/", s.requireAdmin, s.listUsers)
	u.Patch("/me", s.updateMe)
	u.Patch("/me/password", s.changePassword)
	u.Patch("/:id/status", s.requireAdmin, s.setStatus)
	u.Post("/invite", s.requireAdmin, s.inviteUser)
}

// App returns the underlying fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.log.Info(context.Background(), "http server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
