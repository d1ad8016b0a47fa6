// Package notification holds the delivery-side collaborators of the
// scheduling core. Real email/SMS/push delivery lives behind gateways that
// are out of scope; the log notifier stands in for them.
package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/bloomcare/midwife-scheduling/internal/visit"
)

// LogNotifier writes every dispatch to the structured log. It never fails,
// matching the fire-and-forget contract the scheduling core expects.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, v *visit.Visit, channel visit.Channel, subject, body string) error {
	n.log.Info("notification dispatched",
		zap.String("visit_id", v.ID.String()),
		zap.String("patient_id", v.PatientID.String()),
		zap.String("channel", string(channel)),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
