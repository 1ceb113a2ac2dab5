package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/mailer"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

const (
	resetSubject  = "Password Reset Request"
	verifySubject = "Verify Your Email Address"
)

// Notifier mails links carrying one-time tokens. Delivery is fire and
// forget: failures are reported to the operator log and never returned.
type Notifier struct {
	sender        mailer.Sender
	resetURLBase  string
	verifyURLBase string
	log           logging.Logger
}

func NewNotifier(sender mailer.Sender, resetURLBase, verifyURLBase string, log logging.Logger) *Notifier {
	return &Notifier{
		sender:        sender,
		resetURLBase:  resetURLBase,
		verifyURLBase: verifyURLBase,
		log:           log.With("module", "notifier"),
	}
}

// NotifyPasswordReset mails the reset link for an issued token.
func (n *Notifier) NotifyPasswordReset(ctx context.Context, issued *IssuedResetToken, ttl time.Duration) {
	link := withToken(n.resetURLBase, issued.Token)
	body := fmt.Sprintf(`Hello %s,

You have requested a password reset. Click the link below to reset your password:

%s

This link will expire in %s.

If you did not request a password reset, please ignore this email.

Best regards,
Authentication System
`, issued.Account.UserName, link, humanDuration(ttl))

	n.send(ctx, issued.Account, resetSubject, body)
}

// NotifyEmailVerification mails the verification link.
func (n *Notifier) NotifyEmailVerification(ctx context.Context, account *models.Account, token string) {
	body := fmt.Sprintf(`Hello %s,

Please confirm your email address by opening the link below:

%s

Best regards,
Authentication System
`, account.UserName, withToken(n.verifyURLBase, token))

	n.send(ctx, account, verifySubject, body)
}

func (n *Notifier) send(ctx context.Context, account *models.Account, subject, body string) {
	if err := n.sender.Send(ctx, account.Email, subject, body); err != nil {
		n.log.Error(ctx, "mail delivery failed",
			"alert", true, "account_id", account.ID, "subject", subject, "error", err)
		return
	}
	n.log.Info(ctx, "mail sent", "account_id", account.ID, "subject", subject)
}

func withToken(base, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short time"
	case d%time.Hour == 0:
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	default:
		return d.String()
	}
}
