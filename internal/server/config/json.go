package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/flagx"
	"github.com/dmitrijs2005/tinyauth/internal/timex"
)

// JsonConfig is the on-disk shape of the optional configuration file.
// Durations use timex.Duration so both "15m" and integer nanoseconds parse.
// Pointer fields distinguish "absent" from an explicit zero value.
type JsonConfig struct {
	HTTPAddr       string `json:"http_addr"`
	GRPCHealthAddr string `json:"grpc_health_addr"`
	DatabaseDSN    string `json:"database_dsn"`
	AutoMigrate    *bool  `json:"auto_migrate"`
	LogLevel       string `json:"log_level"`

	SecretKey                    string          `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	EmailVerificationTTL         *timex.Duration `json:"email_verification_ttl"`
	InviteTTL                    *timex.Duration `json:"invite_ttl"`
	PasswordResetTTL             *timex.Duration `json:"password_reset_ttl"`
	BcryptCost                   int             `json:"bcrypt_cost"`
	AllowSignup                  *bool           `json:"allow_signup"`

	AppDomain           string   `json:"app_domain"`
	AppProtocol         string   `json:"app_protocol"`
	FrontendPort        string   `json:"frontend_port"`
	BackendPort         string   `json:"backend_port"`
	ExtraAllowedOrigins []string `json:"extra_allowed_origins"`

	CookieSecure   *bool  `json:"cookie_secure"`
	CookieSameSite string `json:"cookie_samesite"`
	CookieDomain   string `json:"cookie_domain"`
	CookiePath     string `json:"cookie_path"`

	ProjectName           string `json:"project_name"`
	ResendAPIKey          string `json:"resend_api_key"`
	ResendFromEmail       string `json:"resend_from_email"`
	ResendFromName        string `json:"resend_from_name"`
	EmailTemplateDir      string `json:"email_template_dir"`
	EmailTemplateS3Bucket string `json:"email_template_s3_bucket"`
	EmailTemplateS3Prefix string `json:"email_template_s3_prefix"`
	S3Region              string `json:"s3_region"`
	S3BaseEndpoint        string `json:"s3_base_endpoint"`

	RedisURL     string `json:"redis_url"`
	OTLPEndpoint string `json:"otlp_endpoint"`
}

// parseJson loads configuration values from a JSON file into config.
//
// The file path comes from the -c/-config flags or $AUTH_CONFIG_FILE; when
// neither is set nothing is loaded. Only the keys present in the file
// override the current values. An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCHealthAddr, c.GRPCHealthAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setBool(&config.AutoMigrate, c.AutoMigrate)
	setString(&config.LogLevel, c.LogLevel)

	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.EmailVerificationTTL, c.EmailVerificationTTL)
	setDuration(&config.InviteTTL, c.InviteTTL)
	setDuration(&config.PasswordResetTTL, c.PasswordResetTTL)
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	setBool(&config.AllowSignup, c.AllowSignup)

	setString(&config.AppDomain, c.AppDomain)
	setString(&config.AppProtocol, c.AppProtocol)
	setString(&config.FrontendPort, c.FrontendPort)
	setString(&config.BackendPort, c.BackendPort)
	if len(c.ExtraAllowedOrigins) > 0 {
		config.ExtraAllowedOrigins = c.ExtraAllowedOrigins
	}

	if c.CookieSecure != nil {
		v := *c.CookieSecure
		config.CookieSecure = &v
	}
	setString(&config.CookieSameSite, c.CookieSameSite)
	setString(&config.CookieDomain, c.CookieDomain)
	setString(&config.CookiePath, c.CookiePath)

	setString(&config.ProjectName, c.ProjectName)
	setString(&config.ResendAPIKey, c.ResendAPIKey)
	setString(&config.ResendFromEmail, c.ResendFromEmail)
	setString(&config.ResendFromName, c.ResendFromName)
	setString(&config.EmailTemplateDir, c.EmailTemplateDir)
	setString(&config.EmailTemplateS3Bucket, c.EmailTemplateS3Bucket)
	setString(&config.EmailTemplateS3Prefix, c.EmailTemplateS3Prefix)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	setString(&config.RedisURL, c.RedisURL)
	setString(&config.OTLPEndpoint, c.OTLPEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
