package email

import (
	"context"
	"errors"
)

// Sender define la interfaz para envío de correos transaccionales.
type Sender interface {
	SendVerificationEmail(ctx context.Context, toEmail, nickname, verificationURL string) error
	SendAccountLockedEmail(ctx context.Context, toEmail, nickname string) error
	SendProfessionalStatusEmail(ctx context.Context, toEmail, nickname string, isProfessional bool) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

func (s *disabledSender) SendVerificationEmail(_ context.Context, _, _, _ string) error {
	return s.err()
}

func (s *disabledSender) SendAccountLockedEmail(_ context.Context, _, _ string) error {
	return s.err()
}

func (s *disabledSender) SendProfessionalStatusEmail(_ context.Context, _, _ string, _ bool) error {
	return s.err()
}
