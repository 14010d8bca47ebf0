package mailer

import (
	"context"

	"github.com/dmitrijs2005/tinyauth/internal/logging"
	"github.com/dmitrijs2005/tinyauth/internal/server/config"
)

// NewSource picks the template location from cfg: an S3 bucket, a local
// directory, or the embedded defaults, in that order.
func NewSource(ctx context.Context, cfg *config.Config) (Source, error) {
	switch {
	case cfg.EmailTemplateS3Bucket != "":
		client, err := NewS3Client(ctx, S3Options{
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3RootUser,
			SecretKey:    cfg.S3RootPassword,
		})
		if err != nil {
			return nil, err
		}
		return S3Source{Client: client, Bucket: cfg.EmailTemplateS3Bucket, Prefix: cfg.EmailTemplateS3Prefix}, nil
	case cfg.EmailTemplateDir != "":
		return DirSource(cfg.EmailTemplateDir), nil
	default:
		return DefaultSource(), nil
	}
}

// NewSender returns a Resend sender, or a LogSender when no API key is set.
func NewSender(cfg *config.Config, log logging.Logger) Sender {
	if cfg.ResendAPIKey == "" {
		return NewLogSender(log)
	}
	name := cfg.ResendFromName
	if name == "" {
		name = cfg.ProjectName
	}
	return NewResendSender(cfg.ResendAPIKey, cfg.ResendFromEmail, name)
}
