package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender envía correos via SMTP.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	useTLS   bool
}

func NewSMTPSender(host string, port int, username, password, from, fromName string, useTLS bool) (*SMTPSender, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from is required")
	}
	if port == 0 {
		port = 587
	}
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		fromName: fromName,
		useTLS:   useTLS,
	}, nil
}

func (s *SMTPSender) SendVerificationEmail(_ context.Context, toEmail, nickname, verificationURL string) error {
	if strings.TrimSpace(verificationURL) == "" {
		return fmt.Errorf("verification url is required")
	}
	subject := "Verify your account"
	body := fmt.Sprintf(
		"Hello %s,\n\nPlease verify your account by visiting:\n%s\n",
		displayName(nickname, toEmail),
		verificationURL,
	)
	return s.send(toEmail, subject, body)
}

func (s *SMTPSender) SendAccountLockedEmail(_ context.Context, toEmail, nickname string) error {
	subject := "Account locked"
	body := fmt.Sprintf(
		"Hello %s,\n\nYour account has been locked due to too many failed login attempts.\nContact an administrator to unlock it.\n",
		displayName(nickname, toEmail),
	)
	return s.send(toEmail, subject, body)
}

func (s *SMTPSender) SendProfessionalStatusEmail(_ context.Context, toEmail, nickname string, isProfessional bool) error {
	subject := "Professional status updated"
	status := "revoked"
	if isProfessional {
		status = "granted"
	}
	body := fmt.Sprintf(
		"Hello %s,\n\nYour professional status has been %s.\n",
		displayName(nickname, toEmail),
		status,
	)
	return s.send(toEmail, subject, body)
}

func (s *SMTPSender) send(toEmail, subject, body string) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("to email is required")
	}

	msg := buildMessage(s.from, s.fromName, toEmail, subject, body)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if s.useTLS {
		conn, err := tls.Dial("tcp", addr, &tls.Config{
			ServerName: s.host,
		})
		if err != nil {
			return err
		}
		defer conn.Close()

		client, err := smtp.NewClient(conn, s.host)
		if err != nil {
			return err
		}
		defer client.Quit()

		if auth != nil {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
		if err := client.Mail(s.from); err != nil {
			return err
		}
		if err := client.Rcpt(toEmail); err != nil {
			return err
		}
		writer, err := client.Data()
		if err != nil {
			return err
		}
		if _, err := writer.Write([]byte(msg)); err != nil {
			_ = writer.Close()
			return err
		}
		return writer.Close()
	}

	return smtp.SendMail(addr, auth, s.from, []string{toEmail}, []byte(msg))
}

func displayName(nickname, email string) string {
	if strings.TrimSpace(nickname) != "" {
		return nickname
	}
	return email
}

func buildMessage(from, fromName, to, subject, body string) string {
	fromHeader := from
	if strings.TrimSpace(fromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", fromName, from)
	}

	headers := []string{
		fmt.Sprintf("From: %s", fromHeader),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}

	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}
