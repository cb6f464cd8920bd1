// Package matching lists unmatched bank payments with their invoice candidates
// and settles payments against selected invoices.
package matching

import (
	"context"
	"strconv"
	"strings"

	"github.com/flexidesk/backend/internal/application/exports"
	"github.com/flexidesk/backend/internal/domain/reconciliation"
	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/export"
	"github.com/flexidesk/backend/internal/infrastructure/flexi"
	"github.com/flexidesk/backend/internal/infrastructure/logger"
	"github.com/flexidesk/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExportBaseName prefixes the export filename.
const ExportBaseName = "nesparovane-platby"

// Invoice search settings
const (
	SearchLimit = 100

	SearchIssued   = "vydane"
	SearchReceived = "prijate"
	SearchAll      = "all"
)

var searchFields = []string{"id", "kod", "datVyst", "datSplat", "sumCelkem", "sumCelkemMen", "varSym", "stavUhrK", "firma", "mena", "popis", "zbpisPar"}

var searchLabels = map[string]string{
	reconciliation.IssuedInvoiceEvidence:   "Vydaná faktura",
	reconciliation.ReceivedInvoiceEvidence: "Přijatá faktura",
}

// Gateway is the part of the Flexi client the reconciler needs.
type Gateway interface {
	List(ctx context.Context, evidence string, opts flexi.ListOptions) (*flexi.ListResult, error)
	Put(ctx context.Context, evidence string, payload any) (*flexi.WriteResult, error)
}

// Service builds the unmatched payment report and submits matches.
type Service struct {
	gateway   Gateway
	publisher *exports.Publisher
}

// NewService creates a matching service
func NewService(gateway Gateway, publisher *exports.Publisher) *Service {
	return &Service{gateway: gateway, publisher: publisher}
}

// UnmatchedTable joins every unmatched payment with the invoices sharing its
// variable symbol.
func (s *Service) UnmatchedTable(ctx context.Context) (*export.Table, error) {
	res, err := s.gateway.List(ctx, reconciliation.PaymentEvidence, flexi.ListOptions{
		Filter: reconciliation.UnmatchedPaymentFilter,
		Detail: flexi.Custom(reconciliation.PaymentFields...),
		Limit:  reconciliation.PaymentFetchLimit,
		Order:  reconciliation.PaymentOrder,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return export.NewPlaceholder(reconciliation.MatchingEmptyMessage), nil
	}

	payments := make([]reconciliation.Payment, len(res.Rows))
	for i, r := range res.Rows {
		payments[i] = reconciliation.PaymentFrom(r)
	}

	chunks := reconciliation.Chunk(reconciliation.UniqueVarSyms(payments), reconciliation.VarSymChunkSize)
	idx, err := s.candidates(ctx, chunks)
	if err != nil {
		return nil, err
	}

	logger.For(ctx).Debug("Matching candidates fetched",
		zap.Int("payments", len(payments)),
		zap.Int("chunks", len(chunks)),
		zap.Int("var_syms", len(idx)),
	)

	return &export.Table{
		Headers: reconciliation.MatchingHeaders,
		Rows:    reconciliation.JoinRows(payments, idx),
	}, nil
}

// ExportUnmatched renders UnmatchedTable in format.
func (s *Service) ExportUnmatched(ctx context.Context, format export.Format) (*export.Document, error) {
	t, err := s.UnmatchedTable(ctx)
	if err != nil {
		return nil, err
	}
	return s.publisher.Publish(ctx, t, format, ExportBaseName)
}

// candidates looks up both invoice ledgers for every chunk at once. Results
// are indexed in chunk order, issued before received.
func (s *Service) candidates(ctx context.Context, chunks [][]string) (_ reconciliation.InvoiceIndex, err error) {
	ctx, span := telemetry.StartSpan(ctx, "matching.candidates",
		telemetry.WithAttribute(telemetry.SpanAttrChunks, len(chunks)),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	sources := []reconciliation.SourceType{reconciliation.SourceIssued, reconciliation.SourceReceived}
	results := make([][]flexi.Record, len(chunks)*len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		for j, source := range sources {
			slot := i*len(sources) + j
			opts := flexi.ListOptions{
				Filter: flexi.In("varSym", chunk),
				Detail: flexi.Custom(reconciliation.InvoiceFields...),
				Limit:  reconciliation.InvoiceFetchLimit,
			}
			evidence := source.Evidence()
			g.Go(func() error {
				res, err := s.gateway.List(gctx, evidence, opts)
				if err != nil {
					return err
				}
				results[slot] = res.Rows
				return nil
			})
		}
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	idx := make(reconciliation.InvoiceIndex)
	for slot, rows := range results {
		source := sources[slot%len(sources)]
		for _, r := range rows {
			idx.Add(reconciliation.InvoiceFrom(r, source))
		}
	}
	return idx, nil
}

// SubmitMatch settles a payment. The instruction is validated before anything
// is sent.
func (s *Service) SubmitMatch(ctx context.Context, m reconciliation.MatchInstruction) (_ *flexi.WriteResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "matching.submit",
		telemetry.WithAttribute(telemetry.SpanAttrPaymentID, m.PaymentID),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if err = m.Validate(); err != nil {
		return nil, err
	}
	res, err := s.gateway.Put(ctx, reconciliation.PaymentEvidence, m.Payload())
	if err != nil {
		logger.For(ctx).Warn("Payment match rejected",
			zap.String("payment_id", m.PaymentID),
			zap.Int("selections", len(m.Selections)),
			zap.Error(err),
		)
		return nil, err
	}
	logger.For(ctx).Info("Payment matched",
		zap.String("payment_id", m.PaymentID),
		zap.Int("selections", len(m.Selections)),
		zap.String("remainder", string(m.Remainder)),
	)
	return res, nil
}

// InvoiceSearch is the result of FindInvoices.
type InvoiceSearch struct {
	Invoices      []flexi.Record `json:"invoices"`
	TotalIssued   string         `json:"totalIssued"`
	TotalReceived string         `json:"totalReceived"`
}

// FindInvoices looks up invoices by exact variable symbol in the ledgers
// selected by kind (vydane, prijate or all).
func (s *Service) FindInvoices(ctx context.Context, varSym, kind string) (*InvoiceSearch, error) {
	varSym = strings.TrimSpace(varSym)
	if varSym == "" {
		return nil, shared.NewValidationError("varSym is required")
	}
	if kind == "" {
		kind = SearchAll
	}

	switch kind {
	case SearchIssued, SearchReceived, SearchAll:
	default:
		return nil, shared.NewValidationError("type must be one of vydane, prijate, all")
	}

	var issued, received *flexi.ListResult
	g, gctx := errgroup.WithContext(ctx)
	if kind != SearchReceived {
		g.Go(func() error {
			var err error
			issued, err = s.gateway.List(gctx, reconciliation.IssuedInvoiceEvidence, searchOptions(varSym, searchFields))
			return err
		})
	}
	if kind != SearchIssued {
		g.Go(func() error {
			var err error
			received, err = s.gateway.List(gctx, reconciliation.ReceivedInvoiceEvidence, searchOptions(varSym, append(append([]string{}, searchFields...), "cisDosle")))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &InvoiceSearch{
		Invoices:      []flexi.Record{},
		TotalIssued:   totalOf(issued),
		TotalReceived: totalOf(received),
	}
	out.Invoices = appendTagged(out.Invoices, issued, reconciliation.IssuedInvoiceEvidence)
	out.Invoices = appendTagged(out.Invoices, received, reconciliation.ReceivedInvoiceEvidence)
	return out, nil
}

func searchOptions(varSym string, fields []string) flexi.ListOptions {
	return flexi.ListOptions{
		Filter:      "varSym = " + flexi.Quote(varSym),
		Detail:      flexi.Custom(fields...),
		Limit:       SearchLimit,
		AddRowCount: true,
	}
}

func totalOf(res *flexi.ListResult) string {
	if res == nil || res.RowCount == nil {
		return "0"
	}
	return strconv.Itoa(*res.RowCount)
}

func appendTagged(dst []flexi.Record, res *flexi.ListResult, evidence string) []flexi.Record {
	if res == nil {
		return dst
	}
	for _, r := range res.Rows {
		tagged := make(flexi.Record, len(r)+2)
		for k, v := range r {
			tagged[k] = v
		}
		tagged["_type"] = evidence
		tagged["_typeLabel"] = searchLabels[evidence]
		dst = append(dst, tagged)
	}
	return dst
}
