package email

import (
	"context"
	"errors"
)

// ErrSenderDisabled indica que no hay transporte de correo configurado.
var ErrSenderDisabled = errors.New("email sender disabled")

// Message es un correo saliente en texto plano.
type Message struct {
	To       string
	Subject  string
	Body     string
	Template string
}

// Sender define la interfaz para envio de correos.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) Send(_ context.Context, _ Message) error {
	if s.reason == "" {
		return ErrSenderDisabled
	}
	return errors.Join(ErrSenderDisabled, errors.New(s.reason))
}
