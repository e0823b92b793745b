package kitchen

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vango-go/vai-kiosk/pkg/core"
	"github.com/vango-go/vai-kiosk/pkg/kitchen/journal"
	"github.com/vango-go/vai-kiosk/pkg/order"
)

// Submitter persists an order; *Client implements it.
type Submitter interface {
	Submit(ctx context.Context, key string, c order.Completion) (Receipt, error)
}

// Announcer broadcasts an accepted order; *Notifier implements it.
type Announcer interface {
	Notify(ctx context.Context, r Receipt, c order.Completion) error
}

// Outbox journals completions until the kitchen accepts them;
// *journal.Journal implements it.
type Outbox interface {
	Append(ctx context.Context, c order.Completion) (journal.Entry, error)
	Pending(ctx context.Context) ([]journal.Entry, error)
	MarkSubmitted(ctx context.Context, id, orderID string) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

// Dispatch outcomes passed to DispatcherConfig.Record.
const (
	DispatchSubmitted = "submitted"
	DispatchFailed    = "failed"
	DispatchJournaled = "journaled"
)

// DispatcherConfig wires a Dispatcher. Outbox and Announcer are optional.
type DispatcherConfig struct {
	Submitter Submitter
	Outbox    Outbox
	Announcer Announcer
	Logger    *slog.Logger
	// Record observes each dispatch outcome, for metrics.
	Record func(outcome string)
}

// Dispatcher journals a completion, submits it and announces it.
type Dispatcher struct {
	submitter Submitter
	outbox    Outbox
	announcer Announcer
	logger    *slog.Logger
	record    func(string)
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Submitter == nil {
		return nil, core.NewInvalidRequestError("dispatcher requires a submitter")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	record := cfg.Record
	if record == nil {
		record = func(string) {}
	}
	return &Dispatcher{
		submitter: cfg.Submitter,
		outbox:    cfg.Outbox,
		announcer: cfg.Announcer,
		logger:    logger,
		record:    record,
	}, nil
}

// Dispatch hands c to the kitchen. When the submit fails but the completion
// was journaled, the error is returned and the entry stays pending for Retry.
// Announcement failures are logged only.
func (d *Dispatcher) Dispatch(ctx context.Context, c order.Completion) (Receipt, error) {
	var entryID string
	if d.outbox != nil {
		entry, err := d.outbox.Append(ctx, c)
		if err != nil {
			d.logger.Warn("journal append failed, submitting without outbox", "err", err)
		} else {
			entryID = entry.ID
		}
	}
	return d.deliver(ctx, entryID, c)
}

// Retry resubmits every pending journal entry and reports how many the
// kitchen accepted. It stops at the first submit failure.
func (d *Dispatcher) Retry(ctx context.Context) (int, error) {
	if d.outbox == nil {
		return 0, nil
	}
	pending, err := d.outbox.Pending(ctx)
	if err != nil {
		return 0, err
	}
	submitted := 0
	for _, e := range pending {
		if _, err := d.deliver(ctx, e.ID, e.Completion); err != nil {
			return submitted, err
		}
		submitted++
	}
	if submitted > 0 {
		d.logger.Info("resubmitted journaled orders", "count", submitted)
	}
	return submitted, nil
}

func (d *Dispatcher) deliver(ctx context.Context, entryID string, c order.Completion) (Receipt, error) {
	receipt, err := d.submitter.Submit(ctx, entryID, c)
	if err != nil {
		if entryID != "" {
			if markErr := d.outbox.MarkFailed(ctx, entryID, err); markErr != nil {
				d.logger.Warn("journal update failed", "id", entryID, "err", markErr)
			}
			d.record(DispatchJournaled)
		} else {
			d.record(DispatchFailed)
		}
		d.logger.Error("order submit failed", "id", entryID, "err", err)
		return Receipt{}, err
	}

	if entryID != "" {
		if err := d.outbox.MarkSubmitted(ctx, entryID, receipt.OrderID); err != nil {
			d.logger.Warn("journal update failed", "id", entryID, "err", err)
		}
	}
	d.record(DispatchSubmitted)

	if d.announcer != nil {
		if err := d.announcer.Notify(ctx, receipt, c); err != nil {
			var terr *core.TransportError
			if errors.As(err, &terr) {
				d.logger.Warn("kitchen hub unreachable", "order_id", receipt.OrderID, "err", terr)
			} else {
				d.logger.Warn("kitchen notify failed", "order_id", receipt.OrderID, "err", err)
			}
		}
	}
	return receipt, nil
}
