package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stockplus/stockplus/internal/jobs"
	"github.com/stockplus/stockplus/internal/notify"
)

// NotificationJob renders notification tasks. Delivery is a structured log line;
// channels such as e-mail or SMS plug in behind the rendered message.
type NotificationJob struct {
	Renderer *notify.Renderer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewNotificationJob initialises the notification handlers.
func NewNotificationJob(renderer *notify.Renderer, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationJob {
	if renderer == nil {
		renderer = notify.NewRenderer("en")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationJob{Renderer: renderer, Logger: logger, Metrics: metrics}
}

// Handlers returns the task handlers served on the notifications queue.
func (j *NotificationJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: notify.TaskSaleCreated, Handler: j.HandleSaleCreated},
		{Type: notify.TaskSaleCancelled, Handler: j.HandleSaleCancelled},
		{Type: notify.TaskLowStock, Handler: j.HandleLowStock},
	}
}

// HandleSaleCreated delivers the checkout confirmation.
func (j *NotificationJob) HandleSaleCreated(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.Metrics.Track(notify.TaskSaleCreated)
	defer func() { err = tracker.End(err) }()

	var p notify.SaleCreated
	if err := decode(t, &p); err != nil {
		return err
	}
	j.Logger.InfoContext(ctx, j.Renderer.SaleCreated(p),
		slog.String("task", t.Type()),
		slog.Int64("sale_id", p.SaleID),
		slog.Int64("company_id", p.CompanyID),
	)
	return nil
}

// HandleSaleCancelled delivers the cancellation notice.
func (j *NotificationJob) HandleSaleCancelled(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.Metrics.Track(notify.TaskSaleCancelled)
	defer func() { err = tracker.End(err) }()

	var p notify.SaleCancelled
	if err := decode(t, &p); err != nil {
		return err
	}
	j.Logger.InfoContext(ctx, j.Renderer.SaleCancelled(p),
		slog.String("task", t.Type()),
		slog.Int64("sale_id", p.SaleID),
		slog.Int64("company_id", p.CompanyID),
	)
	return nil
}

// HandleLowStock delivers the low-stock warning.
func (j *NotificationJob) HandleLowStock(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.Metrics.Track(notify.TaskLowStock)
	defer func() { err = tracker.End(err) }()

	var p notify.LowStock
	if err := decode(t, &p); err != nil {
		return err
	}
	j.Logger.WarnContext(ctx, j.Renderer.LowStock(p),
		slog.String("task", t.Type()),
		slog.Int64("company_id", p.CompanyID),
		slog.Int64("product_id", p.ProductID),
		slog.Int("stock", p.Stock),
	)
	j.Metrics.AddLowStock(p.CompanyID, 1)
	return nil
}

func decode(t *asynq.Task, target any) error {
	if err := json.Unmarshal(t.Payload(), target); err != nil {
		return fmt.Errorf("jobs: decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
