package outbox

import (
	"context"
	"log/slog"
	"time"

	"jewelstore/internal/metrics"
	"jewelstore/internal/notify"
)

// Relay drains the outbox on a fixed interval and hands messages to the
// configured Sender.
type Relay struct {
	log       *slog.Logger
	store     *Store
	sender    notify.Sender
	interval  time.Duration
	batchSize int
}

func NewRelay(log *slog.Logger, store *Store, sender notify.Sender, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Relay{log: log, store: store, sender: sender, interval: interval, batchSize: batchSize}
}

// Run delivers batches until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopping")
			return
		case <-t.C:
			if err := r.DeliverOnce(ctx); err != nil {
				r.log.Error("outbox delivery pass failed", "err", err)
			}
		}
	}
}

// DeliverOnce claims one batch and attempts delivery for each message.
func (r *Relay) DeliverOnce(ctx context.Context) error {
	if err := r.store.RequeueStale(ctx, 2*time.Minute); err != nil {
		r.log.Error("failed to requeue stale outbox messages", "err", err)
	}

	msgs, err := r.store.LockBatch(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	sent := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		if err := r.sender.Send(ctx, m.Recipient, m.Subject, m.Body); err != nil {
			metrics.NotificationsFailed.Inc()
			r.log.Error("notification send failed", "id", m.ID, "kind", m.Kind, "attempt", m.Attempts+1, "err", err)
			if merr := r.store.MarkFailed(ctx, m.ID, err.Error()); merr != nil {
				r.log.Error("failed to record send failure", "id", m.ID, "err", merr)
			}
			continue
		}
		sent = append(sent, m.ID)
	}
	if len(sent) > 0 {
		metrics.NotificationsSent.Add(float64(len(sent)))
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return err
		}
	}
	return nil
}
