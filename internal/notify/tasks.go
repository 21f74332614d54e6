// Package notify dispatches best-effort sale notifications through asynq.
package notify

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

const (
	// Queue receives every notification task.
	Queue = "notifications"

	// TaskSaleCreated announces a committed checkout.
	TaskSaleCreated = "sale:created"
	// TaskSaleCancelled announces a cancelled sale.
	TaskSaleCancelled = "sale:cancelled"
	// TaskLowStock warns that a product reached its threshold.
	TaskLowStock = "stock:low"
)

// SaleCreated is the payload of TaskSaleCreated.
type SaleCreated struct {
	SaleID        int64           `json:"sale_id"`
	CompanyID     int64           `json:"company_id"`
	PointOfSaleID *int64          `json:"point_of_sale_id,omitempty"`
	InvoiceNumber string          `json:"invoice_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ItemCount     int             `json:"item_count"`
	ActorID       int64           `json:"actor_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// SaleCancelled is the payload of TaskSaleCancelled.
type SaleCancelled struct {
	SaleID        int64           `json:"sale_id"`
	CompanyID     int64           `json:"company_id"`
	InvoiceNumber string          `json:"invoice_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ActorID       int64           `json:"actor_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// LowStock is the payload of TaskLowStock.
type LowStock struct {
	CompanyID   int64     `json:"company_id"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	Stock       int       `json:"stock"`
	Threshold   int       `json:"threshold"`
	SaleID      int64     `json:"sale_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewSaleCreatedTask constructs the asynq task.
func NewSaleCreatedTask(p SaleCreated) (*asynq.Task, error) {
	return newTask(TaskSaleCreated, p)
}

// NewSaleCancelledTask constructs the asynq task.
func NewSaleCancelledTask(p SaleCancelled) (*asynq.Task, error) {
	return newTask(TaskSaleCancelled, p)
}

// NewLowStockTask constructs the asynq task.
func NewLowStockTask(p LowStock) (*asynq.Task, error) {
	return newTask(TaskLowStock, p)
}

func newTask(kind string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind, body, asynq.Queue(Queue)), nil
}
