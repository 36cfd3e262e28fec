package clients

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"

	"portfolio-payments/internal/models"
)

// Attachment is a file attached to an outgoing email.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Mailer sends HTML email over SMTP. Port 465 uses implicit TLS, everything
// else negotiates STARTTLS.
type Mailer struct {
	host     string
	port     string
	username string
	password string
	fromName string
	logger   *logrus.Entry
}

// NewMailer creates a Mailer from SMTP credentials.
func NewMailer(host, port, username, password, fromName string) *Mailer {
	return &Mailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		fromName: fromName,
		logger:   logrus.WithField("component", "mailer"),
	}
}

// Configured reports whether the mailer has usable credentials.
func (m *Mailer) Configured() bool {
	return m.host != "" && m.username != "" && m.password != ""
}

// Send delivers an HTML email to the recipients, optionally with one
// attachment.
func (m *Mailer) Send(to []string, subject, htmlBody string, attachment *Attachment) error {
	if !m.Configured() {
		return fmt.Errorf("%w: SMTP credentials missing", models.ErrConfiguration)
	}
	if len(to) == 0 {
		return fmt.Errorf("%w: no recipients", models.ErrValidation)
	}

	message := m.buildMessage(to, subject, htmlBody, attachment)
	addr := m.host + ":" + m.port
	auth := smtp.PlainAuth("", m.username, m.password, m.host)

	var err error
	if m.port == "465" {
		err = m.sendImplicitTLS(addr, auth, to, message)
	} else {
		err = m.sendStartTLS(addr, auth, to, message)
	}
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"recipients": len(to),
		"subject":    subject,
	}).Info("Email sent")
	return nil
}

// sendImplicitTLS connects over TLS from the first byte (SMTPS).
func (m *Mailer) sendImplicitTLS(addr string, auth smtp.Auth, to []string, message []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return err
	}
	defer client.Close()

	return m.transmit(client, auth, to, message)
}

// sendStartTLS connects in plaintext and upgrades with STARTTLS.
func (m *Mailer) sendStartTLS(addr string, auth smtp.Auth, to []string, message []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return err
		}
	}
	return m.transmit(client, auth, to, message)
}

func (m *Mailer) transmit(client *smtp.Client, auth smtp.Auth, to []string, message []byte) error {
	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(m.username); err != nil {
		return err
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return err
		}
	}
	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(message); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (m *Mailer) buildMessage(to []string, subject, htmlBody string, attachment *Attachment) []byte {
	const boundary = "portfolio-payments-mime-boundary"

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", m.fromName, m.username)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if attachment == nil {
		b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(htmlBody)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&b, "Content-Disposition: attachment; filename=\"%s\"\r\n\r\n", attachment.Filename)

	encoded := base64.StdEncoding.EncodeToString(attachment.Content)
	// RFC 2045 line length limit for base64 bodies.
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}
