package httpapi

import (
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/server/auth"
	"github.com/dmitrijs2005/tinyauth/internal/server/models"
	"github.com/dmitrijs2005/tinyauth/internal/timex"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var usernameRules = []validation.Rule{validation.Required, validation.Length(3, 100)}

type signupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r signupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Username, usernameRules...),
		validation.Field(&r.Password, validation.Required),
	)
}

type loginRequest struct {
	EmailOrUsername string `json:"email_or_username"`
	Password        string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EmailOrUsername, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (r tokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

type resendRequest struct {
	EmailOrUsername string `json:"email_or_username"`
}

func (r resendRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EmailOrUsername, validation.Required),
	)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (r emailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (r resetConfirmRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
	)
}

type acceptInviteRequest struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r acceptInviteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Username, usernameRules...),
		validation.Field(&r.Password, validation.Required),
	)
}

type updateMeRequest struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
}

func (r updateMeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.NilOrNotEmpty, is.Email),
		validation.Field(&r.Username, validation.NilOrNotEmpty, validation.Length(3, 100)),
	)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
	)
}

type statusRequest struct {
	IsActive *bool `json:"is_active"`
}

func (r statusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IsActive, validation.NotNil),
	)
}

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	IsAdmin    bool       `json:"is_admin"`
	IsActive   bool       `json:"is_active"`
	IsVerified bool       `json:"is_verified"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		Username:   u.Username,
		IsAdmin:    u.IsAdmin,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
		CreatedAt:  timex.UTC(u.CreatedAt),
		UpdatedAt:  u.UpdatedAt,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func toTokenResponse(p auth.TokenPair) tokenResponse {
	return tokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenType: common.TokenType}
}

type loginResponse struct {
	User   userResponse  `json:"user"`
	Tokens tokenResponse `json:"tokens"`
}

type verifyResponse struct {
	Valid bool         `json:"valid"`
	User  userResponse `json:"user"`
}

type inviteResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	ExpiresAt       time.Time  `json:"expires_at"`
	InvitedByUserID *string    `json:"invited_by_user_id"`
	AcceptedAt      *time.Time `json:"accepted_at"`
}

type inviteDetailResponse struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	Accepted  bool      `json:"accepted"`
}
