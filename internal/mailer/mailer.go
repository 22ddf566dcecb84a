// Package mailer delivers the three lifecycle emails: RFP invitation, award
// winner notification, and vendor credential delivery. Every template carries
// exactly one actionable URL holding the capability token; links always point
// at the portal frontend, never at the backend.
package mailer

import (
	"fmt"

	"tprm-service/pkg/config"
	"tprm-service/prometheus"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Sender abstracts email delivery so services can fire-and-forget without
// caring about SMTP, and tests can capture outbound mail.
type Sender interface {
	Send(to, subject, htmlBody string) error
}

// Mailer sends email over SMTP with TLS.
type Mailer struct {
	cfg    config.SMTPConfig
	portal config.PortalConfig
	log    *zap.Logger
}

// New creates a Mailer.
func New(cfg config.SMTPConfig, portal config.PortalConfig, log *zap.Logger) *Mailer {
	return &Mailer{cfg: cfg, portal: portal, log: log}
}

// Send delivers a single HTML email.
func (m *Mailer) Send(to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(m.cfg.From, "TPRM"))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	return d.DialAndSend(msg)
}

// InvitationURL builds the portal link a vendor follows to view an RFP
// invitation.
func InvitationURL(portal config.PortalConfig, token string) string {
	return fmt.Sprintf("%s/rfp/invitations/%s", portal.BaseURL, token)
}

// AwardResponseURL builds the portal link for accepting or rejecting an
// award.
func AwardResponseURL(portal config.PortalConfig, token string) string {
	return fmt.Sprintf("%s/rfp/award-response/%s", portal.BaseURL, token)
}

// InvitationHTML renders the invitation template.
func InvitationHTML(rfpTitle, link string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background-color: #f7f9fc;">
	<table align="center" border="0" cellpadding="0" cellspacing="0" width="600" style="border-collapse: collapse; background-color: #ffffff;">
		<tr>
			<td style="padding: 40px 30px; color: #333333; font-size: 16px; line-height: 1.6;">
				<p style="margin-top: 0;">You have been invited to respond to the following request for proposal:</p>
				<p style="font-weight: bold;">%s</p>
				<p>Use the link below to review the details and submit your proposal.</p>
				<p style="text-align: center; padding: 20px 0;">
					<a href="%s" style="display: inline-block; background-color: #2d5be3; color: #ffffff; text-decoration: none; padding: 12px 30px; border-radius: 4px; font-weight: bold;">View Invitation</a>
				</p>
				<p style="font-size: 12px; color: #666666;">If you did not expect this invitation you can ignore this email.</p>
			</td>
		</tr>
	</table>
</body>
</html>`, rfpTitle, link)
}

// AwardWinnerHTML renders the award notification template.
func AwardWinnerHTML(rfpTitle, awardMessage, nextSteps, link string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background-color: #f7f9fc;">
	<table align="center" border="0" cellpadding="0" cellspacing="0" width="600" style="border-collapse: collapse; background-color: #ffffff;">
		<tr>
			<td style="padding: 40px 30px; color: #333333; font-size: 16px; line-height: 1.6;">
				<p style="margin-top: 0;">Congratulations! Your proposal for <strong>%s</strong> has been selected.</p>
				<p>%s</p>
				<p>%s</p>
				<p style="text-align: center; padding: 20px 0;">
					<a href="%s" style="display: inline-block; background-color: #2d5be3; color: #ffffff; text-decoration: none; padding: 12px 30px; border-radius: 4px; font-weight: bold;">Respond to Award</a>
				</p>
			</td>
		</tr>
	</table>
</body>
</html>`, rfpTitle, awardMessage, nextSteps, link)
}

// CredentialsHTML renders the credential delivery template. The plaintext
// password exists only in this email; the database stores a bcrypt hash.
func CredentialsHTML(username, password, portalURL string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background-color: #f7f9fc;">
	<table align="center" border="0" cellpadding="0" cellspacing="0" width="600" style="border-collapse: collapse; background-color: #ffffff;">
		<tr>
			<td style="padding: 40px 30px; color: #333333; font-size: 16px; line-height: 1.6;">
				<p style="margin-top: 0;">Your vendor portal account is ready.</p>
				<p>Username: <strong>%s</strong><br/>Password: <strong>%s</strong></p>
				<p>Please sign in and change your password on first use.</p>
				<p style="text-align: center; padding: 20px 0;">
					<a href="%s" style="display: inline-block; background-color: #2d5be3; color: #ffffff; text-decoration: none; padding: 12px 30px; border-radius: 4px; font-weight: bold;">Open Vendor Portal</a>
				</p>
			</td>
		</tr>
	</table>
</body>
</html>`, username, password, portalURL)
}

// SendAsync delivers an email on a goroutine. Delivery is a side channel: a
// failure is logged and counted, never propagated to the primary operation.
func SendAsync(sender Sender, log *zap.Logger, template, to, subject, body string) {
	go func() {
		if err := sender.Send(to, subject, body); err != nil {
			log.Error("Failed to send email",
				zap.String("template", template),
				zap.String("to", to),
				zap.Error(err),
			)
			prometheus.EmailsSentCounter.WithLabelValues(template, "failed").Inc()
			return
		}
		prometheus.EmailsSentCounter.WithLabelValues(template, "sent").Inc()
	}()
}
