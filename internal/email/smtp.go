package email

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// SMTPSender delivers notifications over plain SMTP. Sends run on their own
// goroutine so a slow mail server never stalls a worker.
type SMTPSender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func NewSMTPSender(host string, port int, user, password, from string) *SMTPSender {
	return &SMTPSender{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		From:     from,
	}
}

func (s *SMTPSender) auth() smtp.Auth {
	if s.User != "" && s.Password != "" {
		return smtp.PlainAuth("", s.User, s.Password, s.Host)
	}
	// Local dev relays (MailHog and friends) accept unauthenticated mail.
	return nil
}

// subject derives the notification subject from the job kind.
func subject(rep Report, attached bool) string {
	var what string
	switch rep.Kind {
	case "batch":
		what = "Batch Execution"
	case "procedure":
		what = "Procedure Export"
	default:
		what = "Query Export"
	}
	if attached {
		return fmt.Sprintf("Your %s is Ready (Attached)", what)
	}
	return fmt.Sprintf("Your %s is Ready", what)
}

func (s *SMTPSender) SendDownloadLink(to, downloadURL string, rep Report) {
	go func() {
		addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
		body := fmt.Sprintf(
			"Hello,\n\nYour job has completed successfully.\n\n%s\nDownload Link:\n%s\n\nThis link will expire depending on your storage policy.\n",
			rep.Summary(), downloadURL)

		msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s\r\n",
			to, subject(rep, false), body))

		slog.Info("Sending notification via SMTP", "to", to, "job_id", rep.JobID, "host", s.Host)
		if err := smtp.SendMail(addr, s.auth(), s.From, []string{to}, msg); err != nil {
			slog.Error("Failed to send notification", "error", err, "to", to, "job_id", rep.JobID)
			return
		}
		slog.Info("Notification sent", "to", to, "job_id", rep.JobID)
	}()
}

func (s *SMTPSender) SendWithAttachment(to, filename string, content []byte, rep Report) {
	go func() {
		addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
		msg := attachmentMessage(to, subject(rep, true), rep, filename, content)

		slog.Info("Sending notification with attachment via SMTP",
			"to", to, "job_id", rep.JobID, "size", len(content))
		if err := smtp.SendMail(addr, s.auth(), s.From, []string{to}, msg); err != nil {
			slog.Error("Failed to send notification", "error", err, "to", to, "job_id", rep.JobID)
			return
		}
		slog.Info("Notification sent", "to", to, "job_id", rep.JobID)
	}()
}

// attachmentContentType maps an export artifact's filename to its MIME type.
func attachmentContentType(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(filename, ".csv"):
		return "text/csv"
	case strings.HasSuffix(filename, ".json"):
		return "application/json"
	case strings.HasSuffix(filename, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(filename, ".pdf"):
		return "application/pdf"
	}
	return "application/octet-stream"
}

// attachmentMessage assembles a multipart/mixed message: a plain-text body
// built from the report, then the artifact base64-encoded in 76-column lines
// per RFC 2045.
func attachmentMessage(to, subject string, rep Report, filename string, content []byte) []byte {
	const boundary = "dbstream-export-boundary"

	var sb strings.Builder
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&sb, "Content-Type: multipart/mixed; boundary=%q\r\n", boundary)
	sb.WriteString("\r\n")

	fmt.Fprintf(&sb, "--%s\r\n", boundary)
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	fmt.Fprintf(&sb, "Hello,\n\nYour job has completed successfully.\n\n%s\nPlease find the export attached.\n\r\n", rep.Summary())

	fmt.Fprintf(&sb, "--%s\r\n", boundary)
	fmt.Fprintf(&sb, "Content-Type: %s; name=%q\r\n", attachmentContentType(filename), filename)
	sb.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&sb, "Content-Disposition: attachment; filename=%q\r\n", filename)
	sb.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString(content)
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		sb.WriteString(encoded[i:end])
		sb.WriteString("\r\n")
	}

	fmt.Fprintf(&sb, "\r\n--%s--", boundary)
	return []byte(sb.String())
}
