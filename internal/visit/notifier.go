package visit

import "context"

// Notifier is the delivery collaborator. Dispatch is best-effort from the
// scheduling core's perspective: a send failure never rolls back a committed
// schedule change.
type Notifier interface {
	Send(ctx context.Context, v *Visit, channel Channel, subject, body string) error
}
