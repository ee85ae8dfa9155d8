package notify

import (
	"crypto/tls"
	"fmt"
	"html"
	"net/smtp"
	"sort"
	"strings"

	"github.com/acme/lead-call-scheduler/internal/config"
	"github.com/acme/lead-call-scheduler/internal/domain"
	"github.com/acme/lead-call-scheduler/internal/report"
)

// SMTPSender delivers notifications over SMTP, either implicit TLS (465) or
// STARTTLS (587) depending on configuration.
type SMTPSender struct {
	host     string
	port     string
	username string
	password string
	fromName string
	secure   bool
}

// NewSMTPSender builds a sender from notification config.
func NewSMTPSender(cfg config.NotifyConfig) *SMTPSender {
	return &SMTPSender{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		fromName: cfg.FromName,
		secure:   cfg.Secure,
	}
}

// SendCallReport mails the analysis of a single finished call.
func (s *SMTPSender) SendCallReport(recipient, leadName string, analysis *domain.CallAnalysis) error {
	summary := "N/A"
	sentiment := "N/A"
	if analysis != nil {
		if analysis.Summary != "" {
			summary = analysis.Summary
		}
		if analysis.Sentiment != "" {
			sentiment = analysis.Sentiment
		}
	}

	body := fmt.Sprintf(
		"<h2>Call Report: %s</h2>"+
			"<p><b>Summary:</b> %s</p>"+
			"<p><b>Sentiment:</b> %s</p>",
		html.EscapeString(orNA(leadName)),
		html.EscapeString(summary),
		html.EscapeString(sentiment),
	)
	subject := fmt.Sprintf("Call report for %s", orNA(leadName))
	return s.send(recipient, subject, body)
}

// SendFollowUp mails the follow-up details captured during a call.
func (s *SMTPSender) SendFollowUp(recipient string, f FollowUp) error {
	body := fmt.Sprintf(
		"<h2>Follow-Up Requested</h2>"+
			"<p><b>Lead:</b> %s</p>"+
			"<p><b>Intent:</b> %s</p>"+
			"<p><b>Preferred time:</b> %s</p>"+
			"<p><b>Email:</b> %s</p>"+
			"<p><b>Phone:</b> %s</p>",
		html.EscapeString(orNA(f.LeadName)),
		html.EscapeString(orNA(f.Intent)),
		html.EscapeString(orNA(f.FollowUpTime)),
		html.EscapeString(orNA(f.LeadEmail)),
		html.EscapeString(orNA(f.LeadPhone)),
	)
	subject := fmt.Sprintf("Follow-up requested by %s", orNA(f.LeadName))
	return s.send(recipient, subject, body)
}

// SendBatchReport mails the per-lead outcome table for a finished batch.
func (s *SMTPSender) SendBatchReport(recipient string, batchReport report.Report) error {
	var b strings.Builder
	b.WriteString("<h2>Batch Call Report</h2>")
	b.WriteString(`<table border="1" cellpadding="6" cellspacing="0">`)
	b.WriteString("<tr><th>Lead</th><th>Phone</th><th>Status</th><th>Sentiment</th><th>Summary</th><th>Follow-Up</th></tr>")

	phones := make([]string, 0, len(batchReport))
	for phone := range batchReport {
		phones = append(phones, phone)
	}
	sort.Strings(phones)

	for _, phone := range phones {
		entry := batchReport[phone]
		b.WriteString("<tr>")
		writeCell(&b, entry.LeadDetails.Name)
		writeCell(&b, phone)
		writeCell(&b, string(entry.CallDetails.Status))
		writeCell(&b, entry.CallDetails.Sentiment)
		writeCell(&b, entry.CallDetails.Summary)
		writeCell(&b, entry.CallDetails.FollowUp)
		b.WriteString("</tr>")
		if entry.CallDetails.Appointment != "" {
			b.WriteString(fmt.Sprintf(
				`<tr><td colspan="6"><b>Appointment:</b> %s (%s)</td></tr>`,
				html.EscapeString(entry.CallDetails.Appointment),
				html.EscapeString(entry.LeadDetails.Address),
			))
		}
	}
	b.WriteString("</table>")

	return s.send(recipient, "Batch call report", b.String())
}

func (s *SMTPSender) send(to, subject, bodyHTML string) error {
	from := fmt.Sprintf("%s <%s>", s.fromName, s.username)
	msg := []byte(
		fmt.Sprintf("From: %s\r\n", from) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			wrapLayout(bodyHTML),
	)

	serverAddr := s.host + ":" + s.port
	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	if s.secure {
		// Port 465, implicit TLS
		conn, err := tls.Dial("tcp", serverAddr, &tls.Config{ServerName: s.host})
		if err != nil {
			return fmt.Errorf("tls dial: %w", err)
		}
		defer conn.Close()

		client, err := smtp.NewClient(conn, s.host)
		if err != nil {
			return fmt.Errorf("smtp client: %w", err)
		}
		defer client.Quit()

		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
		return s.transmit(client, to, msg)
	}

	// Port 587, STARTTLS
	if err := smtp.SendMail(serverAddr, auth, s.username, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (s *SMTPSender) transmit(client *smtp.Client, to string, msg []byte) error {
	if err := client.Mail(s.username); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return nil
}

func writeCell(b *strings.Builder, v string) {
	b.WriteString("<td>")
	b.WriteString(html.EscapeString(orNA(v)))
	b.WriteString("</td>")
}

func orNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return "N/A"
	}
	return v
}

func wrapLayout(content string) string {
	header := `
	<!DOCTYPE html>
	<html>
	<head>
		<meta charset="utf-8" />
		<style>
			body { font-family: Arial, sans-serif; background-color: #f6f8fa; padding: 30px; }
			.container { max-width: 640px; margin: auto; background: #fff; border-radius: 10px; overflow: hidden; box-shadow: 0 2px 5px rgba(0,0,0,0.1); }
			.body { padding: 25px; color: #333; line-height: 1.6; }
			table { border-collapse: collapse; width: 100%; }
			th { background: #f1f1f1; text-align: left; }
		</style>
	</head>
	<body>
	<div class="container">
		<div class="body">
	`

	footer := `
		</div>
	</div>
	</body>
	</html>
	`

	return header + strings.TrimSpace(content) + footer
}
