package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig mirrors the deployment's environment variables. Every field is a
// pointer so that only variables which are actually set override the
// current configuration. Lifetimes keep their historical integer units.
type envConfig struct {
	HTTPAddr       *string `env:"HTTP_ADDR"`
	GRPCHealthAddr *string `env:"GRPC_HEALTH_ADDR"`
	DatabaseDSN    *string `env:"DATABASE_URL"`
	AutoMigrate    *bool   `env:"AUTO_MIGRATE"`
	LogLevel       *string `env:"LOG_LEVEL"`

	SecretKey                *string `env:"JWT_SECRET_KEY"`
	AccessTokenExpireMinutes *int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES"`
	RefreshTokenExpireDays   *int    `env:"REFRESH_TOKEN_EXPIRE_DAYS"`
	EmailVerificationHours   *int    `env:"EMAIL_VERIFICATION_EXPIRATION_HOURS"`
	InviteExpirationHours    *int    `env:"INVITE_EXPIRATION_HOURS"`
	PasswordResetHours       *int    `env:"PASSWORD_RESET_EXPIRATION_HOURS"`
	BcryptCost               *int    `env:"BCRYPT_COST"`
	AllowSignup              *bool   `env:"ALLOW_SIGNUP"`
	PasswordMinLength        *int    `env:"PASSWORD_MIN_LENGTH"`
	PasswordRequireUppercase *bool   `env:"PASSWORD_REQUIRE_UPPERCASE"`
	PasswordRequireLowercase *bool   `env:"PASSWORD_REQUIRE_LOWERCASE"`
	PasswordRequireDigit     *bool   `env:"PASSWORD_REQUIRE_DIGIT"`
	PasswordRequireSymbol    *bool   `env:"PASSWORD_REQUIRE_SYMBOL"`

	AppDomain           *string `env:"APP_DOMAIN"`
	AppProtocol         *string `env:"APP_PROTOCOL"`
	FrontendPort        *string `env:"FRONTEND_PORT"`
	BackendPort         *string `env:"BACKEND_PORT"`
	ExtraAllowedOrigins *string `env:"EXTRA_ALLOWED_ORIGINS"`

	CookieSecure   *bool   `env:"COOKIE_SECURE"`
	CookieSameSite *string `env:"COOKIE_SAMESITE"`
	CookieDomain   *string `env:"COOKIE_DOMAIN"`
	CookiePath     *string `env:"COOKIE_PATH"`

	ProjectName           *string `env:"PROJECT_NAME"`
	ResendAPIKey          *string `env:"RESEND_API_KEY"`
	ResendFromEmail       *string `env:"RESEND_FROM_EMAIL"`
	ResendFromName        *string `env:"RESEND_FROM_NAME"`
	EmailTemplateDir      *string `env:"EMAIL_TEMPLATE_DIR"`
	EmailTemplateS3Bucket *string `env:"EMAIL_TEMPLATE_S3_BUCKET"`
	EmailTemplateS3Prefix *string `env:"EMAIL_TEMPLATE_S3_PREFIX"`
	MailQueueSize         *int    `env:"MAIL_QUEUE_SIZE"`

	S3Region       *string `env:"S3_REGION"`
	S3BaseEndpoint *string `env:"S3_BASE_ENDPOINT"`
	S3RootUser     *string `env:"S3_ROOT_USER"`
	S3RootPassword *string `env:"S3_ROOT_PASSWORD"`

	RedisURL       *string        `env:"REDIS_URL"`
	ThrottleLimit  *int           `env:"THROTTLE_LIMIT"`
	ThrottleWindow *time.Duration `env:"THROTTLE_WINDOW"`
	OTLPEndpoint   *string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// parseEnv overlays environment variables onto config.
// A malformed value (e.g. a non-numeric TTL) panics, like a bad JSON file.
func parseEnv(config *Config) {
	if err := ApplyEnv(config); err != nil {
		panic(err)
	}
}

// ApplyEnv overlays environment variables onto config, for tools that do
// not take the server's flags or JSON file.
func ApplyEnv(config *Config) error {
	var e envConfig
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	e.apply(config)
	return nil
}

func (e *envConfig) apply(c *Config) {
	pick(&c.HTTPAddr, e.HTTPAddr)
	pick(&c.GRPCHealthAddr, e.GRPCHealthAddr)
	pick(&c.DatabaseDSN, e.DatabaseDSN)
	pick(&c.AutoMigrate, e.AutoMigrate)
	pick(&c.LogLevel, e.LogLevel)

	pick(&c.SecretKey, e.SecretKey)
	pickScaled(&c.AccessTokenValidityDuration, e.AccessTokenExpireMinutes, time.Minute)
	pickScaled(&c.RefreshTokenValidityDuration, e.RefreshTokenExpireDays, 24*time.Hour)
	pickScaled(&c.EmailVerificationTTL, e.EmailVerificationHours, time.Hour)
	pickScaled(&c.InviteTTL, e.InviteExpirationHours, time.Hour)
	pickScaled(&c.PasswordResetTTL, e.PasswordResetHours, time.Hour)
	pick(&c.BcryptCost, e.BcryptCost)
	pick(&c.AllowSignup, e.AllowSignup)
	pick(&c.Password.MinLength, e.PasswordMinLength)
	pick(&c.Password.RequireUppercase, e.PasswordRequireUppercase)
	pick(&c.Password.RequireLowercase, e.PasswordRequireLowercase)
	pick(&c.Password.RequireDigit, e.PasswordRequireDigit)
	pick(&c.Password.RequireSymbol, e.PasswordRequireSymbol)

	pick(&c.AppDomain, e.AppDomain)
	pick(&c.AppProtocol, e.AppProtocol)
	pick(&c.FrontendPort, e.FrontendPort)
	pick(&c.BackendPort, e.BackendPort)
	if e.ExtraAllowedOrigins != nil {
		c.ExtraAllowedOrigins = splitList(*e.ExtraAllowedOrigins)
	}

	if e.CookieSecure != nil {
		v := *e.CookieSecure
		c.CookieSecure = &v
	}
	pick(&c.CookieSameSite, e.CookieSameSite)
	pick(&c.CookieDomain, e.CookieDomain)
	pick(&c.CookiePath, e.CookiePath)

	pick(&c.ProjectName, e.ProjectName)
	pick(&c.ResendAPIKey, e.ResendAPIKey)
	pick(&c.ResendFromEmail, e.ResendFromEmail)
	pick(&c.ResendFromName, e.ResendFromName)
	pick(&c.EmailTemplateDir, e.EmailTemplateDir)
	pick(&c.EmailTemplateS3Bucket, e.EmailTemplateS3Bucket)
	pick(&c.EmailTemplateS3Prefix, e.EmailTemplateS3Prefix)
	pick(&c.MailQueueSize, e.MailQueueSize)

	pick(&c.S3Region, e.S3Region)
	pick(&c.S3BaseEndpoint, e.S3BaseEndpoint)
	pick(&c.S3RootUser, e.S3RootUser)
	pick(&c.S3RootPassword, e.S3RootPassword)

	pick(&c.RedisURL, e.RedisURL)
	pick(&c.ThrottleLimit, e.ThrottleLimit)
	pick(&c.ThrottleWindow, e.ThrottleWindow)
	pick(&c.OTLPEndpoint, e.OTLPEndpoint)
}

func pick[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func pickScaled(dst *time.Duration, v *int, unit time.Duration) {
	if v != nil {
		*dst = time.Duration(*v) * unit
	}
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
