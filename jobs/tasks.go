package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockAudit checks stock invariants and low stock across datasets.
	TaskStockAudit = "stock:audit"
)

// StockAuditPayload selects the datasets to audit. Empty fields fall back to
// the worker configuration.
type StockAuditPayload struct {
	Datasets          []string  `json:"datasets,omitempty"`
	LowStockThreshold int64     `json:"low_stock_threshold,omitempty"`
	RequestedAt       time.Time `json:"requested_at"`
}

// NewStockAuditTask constructs an Asynq task for the stock audit.
func NewStockAuditTask(payload StockAuditPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAudit, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}
