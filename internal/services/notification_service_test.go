// internal/services/notification_service_test.go
package services

import (
	"net/smtp"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/config"
	"github.com/javajoker/substance-compliance/internal/models"
)

type sentMail struct {
	addr string
	to   []string
	msg  string
}

func (suite *ServicesTestSuite) newNotifier() (*NotificationService, *[]sentMail) {
	var sent []sentMail
	n := NewNotificationService(suite.db, config.EmailConfig{
		SMTPHost:  "smtp.example.com",
		SMTPPort:  "25",
		FromEmail: "compliance@example.com",
	})
	n.now = func() time.Time { return fixedNow }
	n.sendMail = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, to: to, msg: string(msg)})
		return nil
	}
	return n, &sent
}

func (suite *ServicesTestSuite) TestNotifyStaleOverridesMailsDeciders() {
	notifier, sent := suite.newNotifier()
	suite.createUser("inactive", models.UserRoleAdmin)
	suite.Require().NoError(suite.db.Model(&models.User{}).
		Where("username = ?", "inactive").
		Update("status", models.UserStatusSuspended).Error)

	validated := fixedNow.Add(-50 * time.Hour)
	tx := models.Transaction{
		ExternalReference: "SO-STALE",
		CustomerID:        suite.customer.ID,
		Customer:          suite.customer,
		ValidatedAt:       &validated,
	}

	suite.Require().NoError(notifier.NotifyStaleOverrides(suite.ctx, []models.Transaction{tx}))
	suite.Require().Len(*sent, 1)
	mail := (*sent)[0]
	suite.Equal("smtp.example.com:25", mail.addr)
	suite.Equal([]string{"responsible@example.com"}, mail.to)
	suite.Contains(mail.msg, "Subject: 1 compliance overrides awaiting a decision")
	suite.Contains(mail.msg, "SO-STALE")
	suite.Contains(mail.msg, "Apotheek Centrum")
	suite.Contains(mail.msg, "50h0m0s")
}

func (suite *ServicesTestSuite) TestNotifyStaleOverridesWithoutSMTPOnlyLogs() {
	notifier := NewNotificationService(suite.db, config.EmailConfig{})
	called := false
	notifier.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}
	suite.NoError(notifier.NotifyStaleOverrides(suite.ctx, []models.Transaction{{ExternalReference: "SO-1"}}))
	suite.False(called)
}

func (suite *ServicesTestSuite) TestNotifyCriticalImpactSkipsCleanReports() {
	notifier, sent := suite.newNotifier()
	licence := &models.Licence{LicenceNumber: "OW-1"}
	report := &compliance.ImpactReport{Summary: compliance.ImpactSummary{Analyzed: 3, Minor: 1}}

	suite.NoError(notifier.NotifyCriticalImpact(suite.ctx, licence, report))
	suite.Empty(*sent)
}

func (suite *ServicesTestSuite) TestCorrectDatesNotifiesCriticalImpact() {
	notifier, sent := suite.newNotifier()
	suite.licences.SetNotifier(notifier)

	licence := suite.registerLicence("OW-2026-009", day(2026, time.January, 1), nil)
	_, err := suite.submitOrder("SO-NOTIFY", day(2026, time.March, 10), "1", "g")
	suite.Require().NoError(err)

	corrected := day(2026, time.April, 1)
	result, err := suite.licences.CorrectDates(suite.ctx, licence.ID, suite.officer, &CorrectLicenceDatesRequest{
		IssueDate: &corrected,
		Reason:    "Issue date misread from certificate",
	})
	suite.Require().NoError(err)
	suite.Equal(1, result.Report.Summary.Critical)

	suite.Require().Len(*sent, 1)
	suite.Contains((*sent)[0].msg, "Subject: Licence OW-2026-009 correction affects past transactions")
	suite.Contains((*sent)[0].msg, "SO-NOTIFY (2026-03-10)")
}

func (suite *ServicesTestSuite) TestNotificationRecipientsExcludeOfficers() {
	notifier, _ := suite.newNotifier()
	adminID := suite.createUser("admin", models.UserRoleAdmin)
	suite.NotEqual(uuid.Nil, adminID)

	to, err := notifier.recipients(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal([]string{"admin@example.com", "responsible@example.com"}, to)
}
