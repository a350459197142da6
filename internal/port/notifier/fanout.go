package notifier

import (
	"context"
	"log/slog"
)

// Fanout delivers one notification to every configured notifier.
// Delivery failures are logged and swallowed: a broken webhook must
// never fail the workflow turn that triggered it.
type Fanout struct {
	notifiers []Notifier
	log       *slog.Logger
}

// NewFanout builds a fanout over the given notifiers.
func NewFanout(log *slog.Logger, notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers, log: log}
}

// Send delivers n to all notifiers, continuing past failures.
func (f *Fanout) Send(ctx context.Context, n Notification) {
	for _, nt := range f.notifiers {
		if err := nt.Send(ctx, n); err != nil {
			f.log.Warn("notification delivery failed",
				"notifier", nt.Name(),
				"source", n.Source,
				"error", err)
		}
	}
}

// Empty reports whether no notifiers are configured.
func (f *Fanout) Empty() bool { return len(f.notifiers) == 0 }
