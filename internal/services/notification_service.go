// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/config"
	"github.com/javajoker/substance-compliance/internal/models"
)

// NotificationService emails the staff who can decide overrides.
type NotificationService struct {
	db       *gorm.DB
	config   config.EmailConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger   *logrus.Entry
	now      func() time.Time
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, cfg config.EmailConfig) *NotificationService {
	return &NotificationService{
		db:       db,
		config:   cfg,
		sendMail: smtp.SendMail,
		logger:   logrus.WithField("component", "notifications"),
		now:      time.Now,
	}
}

type staleOverrideRow struct {
	Reference string
	Customer  string
	Waiting   string
	Findings  int
}

// NotifyStaleOverrides sends one digest listing the overrides that are still
// waiting for a decision.
func (s *NotificationService) NotifyStaleOverrides(ctx context.Context, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	now := s.now()
	rows := make([]staleOverrideRow, 0, len(txs))
	for _, tx := range txs {
		row := staleOverrideRow{
			Reference: tx.ExternalReference,
			Customer:  tx.CustomerID.String(),
			Findings:  len(tx.Violations),
		}
		if tx.Customer != nil {
			row.Customer = tx.Customer.Name
		}
		if tx.ValidatedAt != nil {
			row.Waiting = now.Sub(*tx.ValidatedAt).Round(time.Hour).String()
		}
		rows = append(rows, row)
	}

	tmpl := s.getEmailTemplate("stale_overrides")
	body, err := s.renderTemplate(tmpl.Body, map[string]interface{}{
		"Count": len(rows),
		"Rows":  rows,
	})
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return s.broadcast(ctx, fmt.Sprintf(tmpl.Subject, len(rows)), body)
}

// NotifyCriticalImpact alerts the deciders when a licence correction turned
// historic transactions non-compliant.
func (s *NotificationService) NotifyCriticalImpact(ctx context.Context, licence *models.Licence, report *compliance.ImpactReport) error {
	if report == nil || report.Summary.Critical == 0 {
		return nil
	}

	var critical []compliance.ImpactItem
	for _, item := range report.Items {
		if item.Severity == compliance.ImpactCritical {
			critical = append(critical, item)
		}
	}

	tmpl := s.getEmailTemplate("critical_impact")
	body, err := s.renderTemplate(tmpl.Body, map[string]interface{}{
		"LicenceNumber": licence.LicenceNumber,
		"WindowStart":   report.WindowStart.Format("2006-01-02"),
		"WindowEnd":     report.WindowEnd.Format("2006-01-02"),
		"Summary":       report.Summary,
		"Items":         critical,
	})
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return s.broadcast(ctx, fmt.Sprintf(tmpl.Subject, licence.LicenceNumber), body)
}

// recipients returns the e-mail addresses of active users allowed to decide
// overrides.
func (s *NotificationService) recipients(ctx context.Context) ([]string, error) {
	var emails []string
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("status = ? AND role IN ?", models.UserStatusActive,
			[]models.UserRole{models.UserRoleResponsiblePerson, models.UserRoleAdmin}).
		Order("email").
		Pluck("email", &emails).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recipients: %w", err)
	}
	return emails, nil
}

func (s *NotificationService) broadcast(ctx context.Context, subject, body string) error {
	to, err := s.recipients(ctx)
	if err != nil {
		return err
	}
	if len(to) == 0 {
		s.logger.WithField("subject", subject).Warn("No recipients for notification")
		return nil
	}
	return s.sendEmail(to, subject, body)
}

// Helper methods
func (s *NotificationService) sendEmail(to []string, subject, body string) error {
	if s.config.SMTPHost == "" {
		// Email not configured, just log
		s.logger.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Info("Email not configured, notification logged only")
		return nil
	}

	// Setup authentication
	var auth smtp.Auth
	if s.config.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)
	}

	// Compose message
	msg := []byte(fmt.Sprintf("From: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.config.FromEmail, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.SMTPHost, s.config.SMTPPort)
	if err := s.sendMail(addr, auth, s.config.FromEmail, to, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"stale_overrides": {
			Subject: "%d compliance overrides awaiting a decision",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>{{.Count}} overrides awaiting a decision</h2>
	<table>
		<tr><th>Reference</th><th>Customer</th><th>Waiting</th><th>Findings</th></tr>
		{{range .Rows}}<tr><td>{{.Reference}}</td><td>{{.Customer}}</td><td>{{.Waiting}}</td><td>{{.Findings}}</td></tr>
		{{end}}
	</table>
</body>
</html>`,
		},
		"critical_impact": {
			Subject: "Licence %s correction affects past transactions",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Licence {{.LicenceNumber}} was corrected</h2>
	<p>Window {{.WindowStart}} to {{.WindowEnd}}: {{.Summary.Analyzed}} transactions analysed,
	{{.Summary.Critical}} critical, {{.Summary.Major}} major, {{.Summary.Minor}} minor.</p>
	<ul>
		{{range .Items}}<li>{{.ExternalReference}} ({{.TransactionDate.Format "2006-01-02"}}): {{.Explanation}}</li>
		{{end}}
	</ul>
</body>
</html>`,
		},
	}

	if template, exists := templates[templateType]; exists {
		return template
	}

	// Default template
	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
