package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockbill/internal/jobs"
	"github.com/odyssey-erp/stockbill/internal/stock"
)

// Finding kinds reported by the stock audit.
const (
	FindingRemainingMismatch = "remaining_mismatch"
	FindingOversold          = "oversold"
	FindingLowStock          = "low_stock"
)

// StockLister is the read side of the stock service used by the audit.
type StockLister interface {
	ListAll(ctx context.Context, dataset string) ([]stock.Item, error)
}

// Finding is one audit observation for an item.
type Finding struct {
	Dataset string
	SNo     int64
	Name    string
	Kind    string
	Detail  string
}

// AuditItems checks remaining = bought - sold, sold <= bought and the low
// stock threshold for every item.
func AuditItems(dataset string, items []stock.Item, lowStock int64) []Finding {
	var findings []Finding
	for _, item := range items {
		if want := item.StockBought - item.StockSold; item.StockRemaining != want {
			findings = append(findings, Finding{
				Dataset: dataset, SNo: item.SNo, Name: item.ItemName, Kind: FindingRemainingMismatch,
				Detail: fmt.Sprintf("remaining %d, expected %d", item.StockRemaining, want),
			})
		}
		if item.StockSold > item.StockBought || item.StockRemaining < 0 {
			findings = append(findings, Finding{
				Dataset: dataset, SNo: item.SNo, Name: item.ItemName, Kind: FindingOversold,
				Detail: fmt.Sprintf("sold %d of %d bought", item.StockSold, item.StockBought),
			})
			continue
		}
		if item.StockRemaining <= lowStock {
			findings = append(findings, Finding{
				Dataset: dataset, SNo: item.SNo, Name: item.ItemName, Kind: FindingLowStock,
				Detail: fmt.Sprintf("%d remaining", item.StockRemaining),
			})
		}
	}
	return findings
}

// StockAuditJob runs TaskStockAudit.
type StockAuditJob struct {
	Stock             StockLister
	Datasets          []string
	LowStockThreshold int64
	Logger            *slog.Logger
	Metrics           *jobmetrics.Metrics
}

// NewStockAuditJob initialises the audit handler.
func NewStockAuditJob(lister StockLister, datasets []string, lowStock int64, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockAuditJob {
	return &StockAuditJob{Stock: lister, Datasets: datasets, LowStockThreshold: lowStock, Logger: logger, Metrics: metrics}
}

// Handle executes the audit for every requested dataset.
func (j *StockAuditJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Stock == nil {
		return errors.New("stock audit: handler not configured")
	}
	var payload StockAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("stock audit: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	_, err = j.Run(ctx, payload)
	return err
}

// Run audits the datasets named in payload and returns the findings.
func (j *StockAuditJob) Run(ctx context.Context, payload StockAuditPayload) (findings []Finding, err error) {
	datasets := payload.Datasets
	if len(datasets) == 0 {
		datasets = j.Datasets
	}
	threshold := payload.LowStockThreshold
	if threshold <= 0 {
		threshold = j.LowStockThreshold
	}

	tracker := j.Metrics.Track(TaskStockAudit)
	defer func() { tracker.End(err) }()

	start := time.Now()
	logger := j.logger().With(slog.Int64("low_stock_threshold", threshold))
	logger.Info("starting stock audit", slog.Any("datasets", datasets))

	var errs []error
	for _, name := range datasets {
		if _, perr := stock.ParseDataset(name); perr != nil {
			// a bad name never resolves; retrying would not help
			logger.Warn("skipping dataset", slog.String("dataset", name), slog.Any("error", perr))
			continue
		}
		items, lerr := j.Stock.ListAll(ctx, name)
		if lerr != nil {
			logger.Error("list dataset", slog.String("dataset", name), slog.Any("error", lerr))
			errs = append(errs, fmt.Errorf("stock audit: %s: %w", name, lerr))
			continue
		}
		found := AuditItems(name, items, threshold)
		counts := map[string]int{}
		for _, f := range found {
			counts[f.Kind]++
			logger.Warn("stock audit finding",
				slog.String("dataset", f.Dataset),
				slog.Int64("sno", f.SNo),
				slog.String("item", f.Name),
				slog.String("kind", f.Kind),
				slog.String("detail", f.Detail))
		}
		for kind, n := range counts {
			j.Metrics.AddFindings(kind, name, n)
		}
		findings = append(findings, found...)
	}

	logger.Info("completed stock audit",
		slog.Int("datasets", len(datasets)),
		slog.Int("findings", len(findings)),
		slog.Duration("duration", time.Since(start)))
	return findings, errors.Join(errs...)
}

func (j *StockAuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
