package services

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Notifier hands transactional emails to the delivery queue. Calls must not
// block on delivery.
type Notifier interface {
	VerificationEmail(ctx context.Context, to, link string)
	InviteEmail(ctx context.Context, to, link, invitedBy string)
	PasswordResetEmail(ctx context.Context, to, link string)
}

// Limiter throttles unauthenticated requests that trigger emails.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

var tracer = otel.Tracer("github.com/dmitrijs2005/tinyauth/internal/server/services")

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// endSpan records err on span unless it is an expected domain failure.
func endSpan(span trace.Span, err error) {
	if err != nil {
		if _, ok := common.MessageOf(err); !ok {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

// normalizeEmail trims and lower-cases an address before storage or lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
