package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"portfolio-payments/internal/clients"
	"portfolio-payments/internal/models"
)

// EmailSender is the outbound email dependency of the dispatcher.
type EmailSender interface {
	Configured() bool
	Send(to []string, subject, htmlBody string, attachment *clients.Attachment) error
}

// SMSSender is the outbound SMS dependency of the dispatcher.
type SMSSender interface {
	Configured() bool
	Send(ctx context.Context, to, body string) error
}

// ReceiptGenerator renders PDF receipts for completed payments.
type ReceiptGenerator interface {
	GenerateReceipt(record *models.PaymentRecord) ([]byte, string, error)
}

// NotificationResult reports which channels delivered for one dispatch.
type NotificationResult struct {
	CustomerEmailSent bool `json:"customerEmailSent"`
	AdminEmailSent    bool `json:"adminEmailSent"`
	CustomerSMSSent   bool `json:"customerSmsSent"`
	AdminSMSSent      bool `json:"adminSmsSent"`
}

// Dispatcher sends payment notifications across email and SMS. Callers must
// hold the notification claim for the record before dispatching; the
// dispatcher itself never rechecks it. Channel failures are logged and
// swallowed so one broken channel cannot block the others.
type Dispatcher struct {
	mailer             EmailSender
	sms                SMSSender
	receipts           ReceiptGenerator
	adminEmails        []string
	adminPhones        []string
	defaultCountryCode string
	logger             *logrus.Entry
}

// NewDispatcher creates a notification Dispatcher.
func NewDispatcher(mailer EmailSender, sms SMSSender, receipts ReceiptGenerator, adminEmails, adminPhones []string, defaultCountryCode string) *Dispatcher {
	if defaultCountryCode == "" {
		defaultCountryCode = "+91"
	}
	return &Dispatcher{
		mailer:             mailer,
		sms:                sms,
		receipts:           receipts,
		adminEmails:        adminEmails,
		adminPhones:        adminPhones,
		defaultCountryCode: defaultCountryCode,
		logger:             logrus.WithField("component", "notification-dispatcher"),
	}
}

// DispatchPaymentNotifications sends the full notification set for a
// completed payment: customer email with PDF receipt, admin email, and SMS
// to customer and admins.
func (d *Dispatcher) DispatchPaymentNotifications(ctx context.Context, record *models.PaymentRecord) *NotificationResult {
	result := &NotificationResult{}
	log := d.logger.WithFields(logrus.Fields{
		"merchant_txn_id": record.MerchantTransactionID,
		"gateway":         record.Gateway,
	})

	if d.mailer != nil && d.mailer.Configured() {
		attachment := d.buildReceiptAttachment(record, log)
		if record.CustomerEmail != "" {
			result.CustomerEmailSent = d.sendCustomerEmail(record, attachment, log)
		}
		if len(d.adminEmails) > 0 {
			result.AdminEmailSent = d.sendAdminEmail(record, attachment, log)
		}
	} else {
		log.Warn("SMTP not configured, skipping email notifications")
	}

	if d.sms != nil && d.sms.Configured() {
		if record.CustomerPhone != "" {
			result.CustomerSMSSent = d.sendCustomerSMS(ctx, record, log)
		}
		if len(d.adminPhones) > 0 {
			result.AdminSMSSent = d.sendAdminSMS(ctx, record, log)
		}
	} else {
		log.Debug("SMS not configured, skipping SMS notifications")
	}

	log.WithFields(logrus.Fields{
		"customer_email": result.CustomerEmailSent,
		"admin_email":    result.AdminEmailSent,
		"customer_sms":   result.CustomerSMSSent,
		"admin_sms":      result.AdminSMSSent,
	}).Info("Notification dispatch finished")
	return result
}

// buildReceiptAttachment renders the PDF once for all email channels. A
// failed render degrades to attachment-free emails.
func (d *Dispatcher) buildReceiptAttachment(record *models.PaymentRecord, log *logrus.Entry) *clients.Attachment {
	if d.receipts == nil {
		return nil
	}
	pdf, filename, err := d.receipts.GenerateReceipt(record)
	if err != nil {
		log.WithError(err).Error("Failed to generate receipt PDF, sending emails without it")
		return nil
	}
	return &clients.Attachment{
		Filename:    filename,
		ContentType: "application/pdf",
		Content:     pdf,
	}
}

func (d *Dispatcher) sendCustomerEmail(record *models.PaymentRecord, attachment *clients.Attachment, log *logrus.Entry) bool {
	subject := fmt.Sprintf("Payment confirmation - %s", record.MerchantTransactionID)
	if err := d.mailer.Send([]string{record.CustomerEmail}, subject, customerEmailBody(record), attachment); err != nil {
		log.WithError(err).Error("Failed to send customer email")
		return false
	}
	return true
}

func (d *Dispatcher) sendAdminEmail(record *models.PaymentRecord, attachment *clients.Attachment, log *logrus.Entry) bool {
	subject := fmt.Sprintf("Payment received - %s - %s", record.MerchantTransactionID, formatAmount(record))
	if err := d.mailer.Send(d.adminEmails, subject, adminEmailBody(record), attachment); err != nil {
		log.WithError(err).Error("Failed to send admin email")
		return false
	}
	return true
}

func (d *Dispatcher) sendCustomerSMS(ctx context.Context, record *models.PaymentRecord, log *logrus.Entry) bool {
	phone, err := NormalizePhone(record.CustomerPhone, d.defaultCountryCode)
	if err != nil {
		log.WithError(err).Warn("Customer phone not usable for SMS")
		return false
	}

	body := fmt.Sprintf("Payment of %s received. Reference: %s. Thank you!", formatAmount(record), record.MerchantTransactionID)
	if err := d.sms.Send(ctx, phone, body); err != nil {
		log.WithError(err).Error("Failed to send customer SMS")
		return false
	}
	return true
}

func (d *Dispatcher) sendAdminSMS(ctx context.Context, record *models.PaymentRecord, log *logrus.Entry) bool {
	body := fmt.Sprintf("Payment received: %s via %s, ref %s", formatAmount(record), record.Gateway, record.MerchantTransactionID)
	sent := false
	for _, admin := range d.adminPhones {
		phone, err := NormalizePhone(admin, d.defaultCountryCode)
		if err != nil {
			log.WithError(err).WithField("admin_phone", admin).Warn("Admin phone not usable for SMS")
			continue
		}
		if err := d.sms.Send(ctx, phone, body); err != nil {
			log.WithError(err).Error("Failed to send admin SMS")
			continue
		}
		sent = true
	}
	return sent
}

func formatAmount(record *models.PaymentRecord) string {
	currency := record.Currency
	if currency == "" {
		currency = "INR"
	}
	return fmt.Sprintf("%s %.2f", currency, float64(record.AmountMinorUnits)/100)
}

func customerEmailBody(record *models.PaymentRecord) string {
	name := record.CustomerName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(`<html><body>
<p>Hi %s,</p>
<p>Your payment of <strong>%s</strong> has been received.</p>
<p>Reference: <strong>%s</strong><br>
Service: %s</p>
<p>A receipt is attached for your records.</p>
<p>Thank you!</p>
</body></html>`, name, formatAmount(record), record.MerchantTransactionID, record.ServiceName)
}

func adminEmailBody(record *models.PaymentRecord) string {
	return fmt.Sprintf(`<html><body>
<p>A payment was completed.</p>
<ul>
<li>Reference: %s</li>
<li>Gateway: %s</li>
<li>Amount: %s</li>
<li>Service: %s</li>
<li>Customer: %s (%s, %s)</li>
<li>Message: %s</li>
</ul>
</body></html>`, record.MerchantTransactionID, record.Gateway, formatAmount(record),
		record.ServiceName, record.CustomerName, record.CustomerEmail, record.CustomerPhone,
		record.CustomerMessage)
}

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// NormalizePhone converts a free-form phone number to E.164. Bare 10-digit
// numbers get defaultCountryCode prepended, matching the Indian mobile
// numbers this service mostly sees.
func NormalizePhone(raw, defaultCountryCode string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if cleaned == "" {
		return "", fmt.Errorf("%w: empty phone number", models.ErrValidation)
	}

	if !strings.HasPrefix(cleaned, "+") {
		// Only bare 10-digit local numbers are accepted without a prefix.
		digits := strings.TrimPrefix(cleaned, "0")
		if len(digits) != 10 {
			return "", fmt.Errorf("%w: %q is not a valid phone number", models.ErrValidation, raw)
		}
		cleaned = defaultCountryCode + digits
	}

	if !e164Pattern.MatchString(cleaned) {
		return "", fmt.Errorf("%w: %q is not a valid E.164 phone number", models.ErrValidation, raw)
	}
	return cleaned, nil
}
