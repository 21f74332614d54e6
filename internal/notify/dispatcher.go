package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

const lowStockWindow = 15 * time.Minute

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher enqueues notification tasks. Duplicate submissions are not errors.
type Dispatcher struct {
	client Enqueuer
	logger *slog.Logger
}

// NewDispatcher wraps an asynq client.
func NewDispatcher(client Enqueuer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{client: client, logger: logger}
}

// SaleCreated enqueues TaskSaleCreated once per sale.
func (d *Dispatcher) SaleCreated(ctx context.Context, p SaleCreated) error {
	task, err := NewSaleCreatedTask(p)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, task, asynq.TaskID("sale-created-"+strconv.FormatInt(p.SaleID, 10)), asynq.MaxRetry(5))
}

// SaleCancelled enqueues TaskSaleCancelled once per sale.
func (d *Dispatcher) SaleCancelled(ctx context.Context, p SaleCancelled) error {
	task, err := NewSaleCancelledTask(p)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, task, asynq.TaskID("sale-cancelled-"+strconv.FormatInt(p.SaleID, 10)), asynq.MaxRetry(5))
}

// LowStock enqueues at most one warning per product per window.
func (d *Dispatcher) LowStock(ctx context.Context, p LowStock) error {
	task, err := NewLowStockTask(p)
	if err != nil {
		return err
	}
	bucket := p.OccurredAt.Truncate(lowStockWindow).Unix()
	id := fmt.Sprintf("low-stock-%d-%d", p.ProductID, bucket)
	return d.enqueue(ctx, task, asynq.TaskID(id), asynq.MaxRetry(3), asynq.Retention(lowStockWindow))
}

func (d *Dispatcher) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	if d == nil || d.client == nil {
		return nil
	}
	info, err := d.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			d.logger.Debug("notification already queued", slog.String("type", task.Type()))
			return nil
		}
		return fmt.Errorf("notify: enqueue %s: %w", task.Type(), err)
	}
	d.logger.Debug("notification queued", slog.String("type", task.Type()), slog.String("task_id", info.ID))
	return nil
}
