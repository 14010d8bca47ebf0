package mailer

import (
	"context"

	"github.com/dmitrijs2005/tinyauth/internal/logging"
)

// Notifier renders the account emails and hands them to a Dispatcher.
// Rendering failures are logged; callers are never blocked or failed.
type Notifier struct {
	templates   *Templates
	dispatcher  *Dispatcher
	projectName string
	log         logging.Logger
}

func NewNotifier(templates *Templates, dispatcher *Dispatcher, projectName string, log logging.Logger) *Notifier {
	return &Notifier{
		templates:   templates,
		dispatcher:  dispatcher,
		projectName: projectName,
		log:         log.With("module", "notifier"),
	}
}

func (n *Notifier) VerificationEmail(ctx context.Context, to, link string) {
	n.send(ctx, to, TemplateVerification, map[string]string{"verification_link": link})
}

func (n *Notifier) InviteEmail(ctx context.Context, to, link, invitedBy string) {
	if invitedBy == "" {
		invitedBy = "A teammate"
	}
	n.send(ctx, to, TemplateInvite, map[string]string{"invite_link": link, "invited_by": invitedBy})
}

func (n *Notifier) PasswordResetEmail(ctx context.Context, to, link string) {
	n.send(ctx, to, TemplatePasswordReset, map[string]string{"reset_link": link})
}

func (n *Notifier) send(ctx context.Context, to, name string, vars map[string]string) {
	vars["project_name"] = n.projectName

	content, err := n.templates.Render(name, vars)
	if err != nil {
		n.log.Error(ctx, "email render failed", "template", name, "error", err)
		return
	}

	n.dispatcher.Enqueue(ctx, Message{
		To:      to,
		Subject: content.Subject,
		HTML:    content.HTML,
		Text:    content.Text,
	})
}
