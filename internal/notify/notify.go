// Package notify fans domain events out to an operator-facing sink. The
// default sink is structured logging; delivery is fire-and-forget and never
// blocks or fails the operation that raised the event.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

const (
	EventCheckoutCompleted = "checkout_completed"
	EventTransactionVoided = "transaction_voided"
	EventRefundIssued      = "refund_issued"
	EventShiftStarted      = "shift_started"
	EventShiftClosed       = "shift_closed"
	EventLowStock          = "low_stock"
	EventTransferRequested = "transfer_requested"
	EventTransferApproved  = "transfer_approved"
	EventTransferCompleted = "transfer_completed"
	EventTransferCancelled = "transfer_cancelled"
	EventRewardRedeemed    = "reward_redeemed"
)

type Event struct {
	Kind    string
	Actor   string
	Subject string
	Detail  map[string]any
}

type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type Noop struct{}

func (Noop) Notify(_ context.Context, _ Event) {}

// LogNotifier writes each event as one structured log line.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) {
	entry := n.logger.Info().
		Str("event", event.Kind).
		Str("actor", event.Actor).
		Str("subject", event.Subject)
	for key, value := range event.Detail {
		entry = entry.Interface(key, value)
	}
	entry.Msg("pos event")
}
