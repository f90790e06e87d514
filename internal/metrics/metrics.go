package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lifesuite/internal/apperr"
)

var (
	// AuthEvents cuenta operaciones de identidad por resultado (success o codigo de error).
	AuthEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifesuite_auth_events_total",
			Help: "Total number of identity operations by outcome",
		},
		[]string{"operation", "result"},
	)

	// MailDeliveries cuenta envios de email por plantilla y resultado.
	MailDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifesuite_mail_deliveries_total",
			Help: "Total number of outbound identity emails by template and result",
		},
		[]string{"template", "result"},
	)

	// TokensSwept cuenta cuentas a las que el mantenimiento limpio tokens vencidos.
	TokensSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifesuite_expired_tokens_swept_total",
			Help: "Total number of accounts whose expired one-shot tokens were cleared",
		},
	)
)

// ObserveAuth registra el resultado de una operacion.
func ObserveAuth(operation string, err error) {
	AuthEvents.WithLabelValues(operation, Result(err)).Inc()
}

func Result(err error) string {
	if err == nil {
		return "success"
	}
	return apperr.From(err).Code
}
