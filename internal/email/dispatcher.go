package email

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"lifesuite/internal/metrics"
)

// Dispatcher envia correos en segundo plano con un timeout acotado.
// El llamador puede esperar el resultado o ignorarlo.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sender: sender, timeout: timeout, logger: logger}
}

// Dispatch lanza el envio y devuelve un canal con el resultado (buffer de 1).
func (d *Dispatcher) Dispatch(msg Message) <-chan error {
	result := make(chan error, 1)
	if d == nil || d.sender == nil {
		result <- ErrSenderDisabled
		return result
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		err := d.sender.Send(ctx, msg)
		template := msg.Template
		if template == "" {
			template = "unknown"
		}
		outcome := "sent"
		if err != nil {
			outcome = "failed"
		}
		metrics.MailDeliveries.WithLabelValues(template, outcome).Inc()
		if err != nil {
			d.logger.Warn("email delivery failed",
				zap.String("template", msg.Template),
				zap.String("to", msg.To),
				zap.Error(err),
			)
		}
		result <- err
	}()
	return result
}

// Wait bloquea hasta que terminen los envios pendientes.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
