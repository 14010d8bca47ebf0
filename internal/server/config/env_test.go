package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv_IntegerLifetimes(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "45")
	t.Setenv("REFRESH_TOKEN_EXPIRE_DAYS", "2")
	t.Setenv("EMAIL_VERIFICATION_EXPIRATION_HOURS", "12")
	t.Setenv("INVITE_EXPIRATION_HOURS", "72")
	t.Setenv("PASSWORD_RESET_EXPIRATION_HOURS", "1")

	c := &Config{}
	c.LoadDefaults()
	parseEnv(c)

	assert.Equal(t, 45*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, 48*time.Hour, c.RefreshTokenValidityDuration)
	assert.Equal(t, 12*time.Hour, c.EmailVerificationTTL)
	assert.Equal(t, 72*time.Hour, c.InviteTTL)
	assert.Equal(t, time.Hour, c.PasswordResetTTL)
}

func TestParseEnv_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "env-secret")
	t.Setenv("ALLOW_SIGNUP", "false")
	t.Setenv("PASSWORD_MIN_LENGTH", "12")
	t.Setenv("PASSWORD_REQUIRE_SYMBOL", "true")
	t.Setenv("PASSWORD_REQUIRE_UPPERCASE", "false")
	t.Setenv("EXTRA_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("COOKIE_SAMESITE", "strict")
	t.Setenv("RESEND_FROM_NAME", "Tiny")
	t.Setenv("THROTTLE_WINDOW", "1m")

	c := &Config{}
	c.LoadDefaults()
	parseEnv(c)

	assert.Equal(t, "env-secret", c.SecretKey)
	assert.False(t, c.AllowSignup)
	assert.Equal(t, 12, c.Password.MinLength)
	assert.True(t, c.Password.RequireSymbol)
	assert.False(t, c.Password.RequireUppercase)
	assert.True(t, c.Password.RequireDigit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.ExtraAllowedOrigins)
	require.NotNil(t, c.CookieSecure)
	assert.True(t, *c.CookieSecure)
	assert.Equal(t, "strict", c.CookieSameSite)
	assert.Equal(t, "Tiny", c.ResendFromName)
	assert.Equal(t, time.Minute, c.ThrottleWindow)
}

func TestParseEnv_UnsetKeepsCurrent(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("FRONTEND_PORT", "")

	c := &Config{SecretKey: "keep", FrontendPort: "3000"}
	parseEnv(c)

	assert.Equal(t, "keep", c.SecretKey)
	assert.Equal(t, "3000", c.FrontendPort)
}

func TestParseEnv_MalformedPanics(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "thirty")

	c := &Config{}
	require.Panics(t, func() { parseEnv(c) })
}

func TestApplyEnv_MalformedReturnsError(t *testing.T) {
	t.Setenv("BCRYPT_COST", "twelve")

	c := &Config{}
	c.LoadDefaults()
	err := ApplyEnv(c)

	require.Error(t, err)
	assert.Equal(t, 10, c.BcryptCost)
}
