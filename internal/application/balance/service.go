// Package balance computes per-counterparty open balances from the ledger.
package balance

import (
	"context"
	"time"

	"github.com/flexidesk/backend/internal/application/exports"
	"github.com/flexidesk/backend/internal/domain/reconciliation"
	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/export"
	"github.com/flexidesk/backend/internal/infrastructure/flexi"
	"github.com/flexidesk/backend/internal/infrastructure/logger"
	"github.com/flexidesk/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExportBaseName prefixes the export filename.
const ExportBaseName = "saldo-odberatelu"

// Gateway is the part of the Flexi client the aggregator needs.
type Gateway interface {
	List(ctx context.Context, evidence string, opts flexi.ListOptions) (*flexi.ListResult, error)
}

// Query selects and pages balances. Zero values take the defaults.
type Query struct {
	FilterType reconciliation.FilterType
	Year       int
	MinBalance *decimal.Decimal
	Page       int
	PageSize   int
}

func (q Query) normalize(now time.Time) (Query, error) {
	if q.FilterType == "" {
		q.FilterType = reconciliation.FilterReceivables
	}
	if !q.FilterType.IsValid() {
		return q, shared.NewValidationError("unknown filterType %q", q.FilterType)
	}
	if q.Year == 0 {
		q.Year = now.Year()
	}
	if q.Year < 1900 || q.Year > 9999 {
		return q, shared.NewValidationError("year %d is out of range", q.Year)
	}
	if q.MinBalance == nil {
		d := decimal.NewFromInt(reconciliation.DefaultMinBalance)
		q.MinBalance = &d
	}
	if q.Page == 0 {
		q.Page = reconciliation.DefaultPage
	}
	if q.Page < 1 {
		return q, shared.NewValidationError("page must be at least 1")
	}
	if q.PageSize == 0 {
		q.PageSize = reconciliation.DefaultPageSize
	}
	if q.PageSize < 1 || q.PageSize > reconciliation.MaxPageSize {
		return q, shared.NewValidationError("limit must be between 1 and %d", reconciliation.MaxPageSize)
	}
	return q, nil
}

// Result is one page of balances.
type Result struct {
	Balances   []reconciliation.CounterpartyBalance `json:"balances"`
	Count      int                                  `json:"count"`
	Total      int                                  `json:"total"`
	Page       int                                  `json:"page"`
	Limit      int                                  `json:"limit"`
	TotalPages int                                  `json:"totalPages"`
	Truncated  bool                                 `json:"truncated"`
}

// Service aggregates the saldo-k-datu evidence.
type Service struct {
	gateway   Gateway
	publisher *exports.Publisher
	now       func() time.Time
}

// NewService creates a balance service
func NewService(gateway Gateway, publisher *exports.Publisher) *Service {
	return &Service{gateway: gateway, publisher: publisher, now: time.Now}
}

// Compute returns the filtered, sorted page of counterparty balances.
func (s *Service) Compute(ctx context.Context, q Query) (*Result, error) {
	now := s.now()
	q, err := q.normalize(now)
	if err != nil {
		return nil, err
	}

	balances, truncated, err := s.collect(ctx, q, now, reconciliation.BalanceFields)
	if err != nil {
		return nil, err
	}

	page := reconciliation.Paginate(balances, q.Page, q.PageSize)
	return &Result{
		Balances:   page.Items,
		Count:      len(page.Items),
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.PageSize,
		TotalPages: page.TotalPages,
		Truncated:  truncated,
	}, nil
}

// Table returns every selected balance as an export table.
func (s *Service) Table(ctx context.Context, q Query) (*export.Table, error) {
	now := s.now()
	q, err := q.normalize(now)
	if err != nil {
		return nil, err
	}

	fields := append(append([]string{}, reconciliation.BalanceFields...), "kod")
	balances, truncated, err := s.collect(ctx, q, now, fields)
	if err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		t := export.NewPlaceholder(reconciliation.BalanceEmptyMessage)
		t.Truncated = truncated
		return t, nil
	}

	rows := make([][]string, len(balances))
	for i, b := range balances {
		rows[i] = b.ExportRow()
	}
	return &export.Table{
		Headers:   reconciliation.BalanceHeaders,
		Rows:      rows,
		Truncated: truncated,
	}, nil
}

// Export renders Table in format.
func (s *Service) Export(ctx context.Context, q Query, format export.Format) (*export.Document, error) {
	t, err := s.Table(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.publisher.Publish(ctx, t, format, ExportBaseName)
}

// collect fetches both ledgers concurrently, folds and selects.
func (s *Service) collect(ctx context.Context, q Query, now time.Time, fields []string) (_ []reconciliation.CounterpartyBalance, _ bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "balance.collect",
		telemetry.WithAttribute(telemetry.SpanAttrFilterType, string(q.FilterType)),
		telemetry.WithAttribute(telemetry.SpanAttrYear, q.Year),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	from, to := reconciliation.DueDateRange(q.Year)
	dueRange := flexi.Between("datSplat", from, to)

	var receivables, payables *flexi.ListResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		receivables, err = s.gateway.List(gctx, reconciliation.BalanceEvidence, ledgerOptions(reconciliation.ModuleIssued, dueRange, fields))
		return err
	})
	g.Go(func() error {
		var err error
		payables, err = s.gateway.List(gctx, reconciliation.BalanceEvidence, ledgerOptions(reconciliation.ModuleReceived, dueRange, fields))
		return err
	})
	if err = g.Wait(); err != nil {
		return nil, false, err
	}

	truncated := receivables.Truncated() || payables.Truncated()
	if truncated {
		logger.For(ctx).Warn("Balance ledger hit the fetch ceiling, result is incomplete",
			zap.Int("ceiling", reconciliation.FetchCeiling),
			zap.Int("receivables", len(receivables.Rows)),
			zap.Int("payables", len(payables.Rows)),
		)
	}

	folded := reconciliation.Fold(entries(receivables.Rows), entries(payables.Rows), now)
	selected := reconciliation.Select(folded, q.FilterType, *q.MinBalance)
	telemetry.SetAttributes(span, telemetry.SpanAttrRows, len(selected))
	return selected, truncated, nil
}

func ledgerOptions(module, dueRange string, fields []string) flexi.ListOptions {
	return flexi.ListOptions{
		Filter:      flexi.And("modul = "+flexi.Quote(module), "zbyvaUhradit > 0", dueRange),
		Detail:      flexi.Custom(fields...),
		Limit:       reconciliation.FetchCeiling,
		AddRowCount: true,
	}
}

func entries(rows []flexi.Record) []reconciliation.LedgerEntry {
	out := make([]reconciliation.LedgerEntry, len(rows))
	for i, r := range rows {
		out[i] = reconciliation.LedgerEntryFrom(r)
	}
	return out
}
