package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ubva/crm-scheduler/internal/observability/metrics"
	"github.com/ubva/crm-scheduler/pkg/logging"
)

// Queue is the subset of OutboxStore the deliverer needs.
type Queue interface {
	FetchPending(ctx context.Context, limit int32) ([]OutboundMessage, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// Deliverer polls the queue and hands each message to the handler. A drain
// that is still running when the next tick fires causes that tick to be skipped.
type Deliverer struct {
	queue     Queue
	handler   DeliveryHandler
	logger    *logging.Logger
	metrics   *metrics.SchedulingMetrics
	batchSize int32
	interval  time.Duration
	running   atomic.Bool
}

func NewDeliverer(queue Queue, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		queue:     queue,
		handler:   handler,
		logger:    logger,
		batchSize: 10,
		interval:  time.Minute,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) WithMetrics(m *metrics.SchedulingMetrics) *Deliverer {
	d.metrics = m
	return d
}

// Start drains on every tick until ctx is cancelled. Drains run on the
// caller's goroutine, so Start returns only after the last one finished.
func (d *Deliverer) Start(ctx context.Context) {
	if d.queue == nil || d.handler == nil {
		return
	}
	d.logger.Info("outbound deliverer started", "interval", d.interval, "batch_size", d.batchSize)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch and returns how many messages were attempted.
// It returns 0 immediately when another drain is in progress.
func (d *Deliverer) Drain(ctx context.Context) int {
	if !d.running.CompareAndSwap(false, true) {
		return 0
	}
	defer d.running.Store(false)

	msgs, err := d.queue.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbound fetch failed", "error", err)
		return 0
	}
	for _, msg := range msgs {
		if err := d.handler.Handle(ctx, msg); err != nil {
			d.logger.Warn("outbound delivery failed", "error", err, "message_id", msg.ID, "module", msg.Module)
			d.metrics.ObserveDelivery(StatusFailed)
			if err := d.queue.MarkFailed(ctx, msg.ID); err != nil {
				d.logger.Error("failed to mark outbound message failed", "error", err, "message_id", msg.ID)
			}
			continue
		}
		d.metrics.ObserveDelivery(StatusDone)
		if err := d.queue.MarkDone(ctx, msg.ID); err != nil {
			d.logger.Error("failed to mark outbound message done", "error", err, "message_id", msg.ID)
			continue
		}
		d.logger.Debug("outbound message sent", "message_id", msg.ID, "module", msg.Module)
	}
	return len(msgs)
}
