package balance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flexidesk/backend/internal/application/exports"
	"github.com/flexidesk/backend/internal/domain/reconciliation"
	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/export"
	"github.com/flexidesk/backend/internal/infrastructure/flexi"
	"github.com/flexidesk/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) List(ctx context.Context, evidence string, opts flexi.ListOptions) (*flexi.ListResult, error) {
	args := m.Called(ctx, evidence, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flexi.ListResult), args.Error(1)
}

var today = time.Date(2025, 3, 15, 10, 30, 0, 0, time.Local)

func newTestService(gw Gateway) *Service {
	svc := NewService(gw, exports.NewPublisher(nil))
	svc.now = func() time.Time { return today }
	return svc
}

func ledger(module string) any {
	return mock.MatchedBy(func(o flexi.ListOptions) bool {
		return strings.Contains(o.Filter, "modul = '"+module+"'")
	})
}

func rows(records ...flexi.Record) *flexi.ListResult {
	n := len(records)
	return &flexi.ListResult{Rows: records, RowCount: &n}
}

func acmeGateway() *MockGateway {
	gw := new(MockGateway)
	gw.On("List", mock.Anything, reconciliation.BalanceEvidence, ledger("FAV")).Return(rows(
		flexi.Record{"firma": "code:ACME", "nazFirmy": "ACME s.r.o.", "datSplat": "2025-03-01+01:00", "zbyvaUhradit": "500"},
		flexi.Record{"firma": "code:ACME", "nazFirmy": "ACME s.r.o.", "datSplat": "2025-04-01+01:00", "zbyvaUhradit": "300"},
		flexi.Record{"firma": "code:SMALL", "nazFirmy": "Malá firma", "datSplat": "2025-04-01", "zbyvaUhradit": "100"},
	), nil)
	gw.On("List", mock.Anything, reconciliation.BalanceEvidence, ledger("FAP")).Return(rows(
		flexi.Record{"firma": "code:SUP", "nazFirmy": "Dodavatel", "datSplat": "2025-02-01", "zbyvaUhradit": "2000"},
	), nil)
	return gw
}

func TestCompute_AcmeScenario(t *testing.T) {
	gw := acmeGateway()

	res, err := newTestService(gw).Compute(context.Background(), Query{})
	require.NoError(t, err)

	require.Len(t, res.Balances, 1)
	acme := res.Balances[0]
	assert.Equal(t, "ACME", acme.Code)
	assert.True(t, acme.Net.Equal(decimal.NewFromInt(800)))
	assert.Equal(t, 2, acme.UnpaidCount)
	assert.Equal(t, 1, acme.OverdueCount)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 100, res.Limit)
	assert.Equal(t, 1, res.TotalPages)
	assert.False(t, res.Truncated)
	gw.AssertExpectations(t)
}

func TestCompute_RequestShape(t *testing.T) {
	gw := new(MockGateway)
	var seen []flexi.ListOptions
	gw.On("List", mock.Anything, reconciliation.BalanceEvidence, mock.Anything).
		Run(func(args mock.Arguments) { seen = append(seen, args.Get(2).(flexi.ListOptions)) }).
		Return(rows(), nil)

	_, err := newTestService(gw).Compute(context.Background(), Query{Year: 2024})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	for _, o := range seen {
		assert.Contains(t, o.Filter, "zbyvaUhradit > 0")
		assert.Contains(t, o.Filter, "datSplat between '2024-01-01' '2024-12-31'")
		assert.Equal(t, "custom:firma,nazFirmy,datSplat,sumCelkem,zbyvaUhradit", o.Detail)
		assert.Equal(t, 10000, o.Limit)
		assert.True(t, o.AddRowCount)
	}
}

func TestCompute_PayablesFilter(t *testing.T) {
	floor := decimal.NewFromInt(50)
	res, err := newTestService(acmeGateway()).Compute(context.Background(), Query{
		FilterType: reconciliation.FilterPayables,
		MinBalance: &floor,
	})
	require.NoError(t, err)

	// payables keep |net| >= min and sort by net ascending
	require.Len(t, res.Balances, 3)
	assert.Equal(t, "SUP", res.Balances[0].Code)
	assert.True(t, res.Balances[0].Net.Equal(decimal.NewFromInt(-2000)))
	assert.Equal(t, "SMALL", res.Balances[1].Code)
	assert.Equal(t, "ACME", res.Balances[2].Code)
}

func TestCompute_Pagination(t *testing.T) {
	floor := decimal.Zero
	res, err := newTestService(acmeGateway()).Compute(context.Background(), Query{
		FilterType: reconciliation.FilterAll,
		MinBalance: &floor,
		Page:       2,
		PageSize:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.TotalPages)
	require.Len(t, res.Balances, 1)
	assert.Equal(t, "SMALL", res.Balances[0].Code)

	res, err = newTestService(acmeGateway()).Compute(context.Background(), Query{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, res.Balances)
	assert.NotNil(t, res.Balances)
}

func TestCompute_Truncated(t *testing.T) {
	gw := new(MockGateway)
	total := 25000
	gw.On("List", mock.Anything, reconciliation.BalanceEvidence, ledger("FAV")).
		Return(&flexi.ListResult{Rows: []flexi.Record{{"firma": "code:A", "zbyvaUhradit": "1000"}}, RowCount: &total}, nil)
	gw.On("List", mock.Anything, reconciliation.BalanceEvidence, ledger("FAP")).Return(rows(), nil)

	res, err := newTestService(gw).Compute(context.Background(), Query{})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
}

func TestCompute_GatewayFailure(t *testing.T) {
	gw := new(MockGateway)
	boom := &flexi.GatewayError{Status: 401, Message: "Unauthorized"}
	gw.On("List", mock.Anything, reconciliation.BalanceEvidence, ledger("FAV")).Return(rows(), nil)
	gw.On("List", mock.Anything, reconciliation.BalanceEvidence, ledger("FAP")).Return(nil, boom)

	_, err := newTestService(gw).Compute(context.Background(), Query{})
	var gwErr *flexi.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, 401, gwErr.Status)
}

func TestCompute_InvalidQuery(t *testing.T) {
	tests := []struct {
		name string
		q    Query
	}{
		{"unknown filter", Query{FilterType: "everything"}},
		{"negative page", Query{Page: -1}},
		{"page size over ceiling", Query{PageSize: 10001}},
		{"negative page size", Query{PageSize: -5}},
		{"year out of range", Query{Year: 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := new(MockGateway)
			_, err := newTestService(gw).Compute(context.Background(), tt.q)
			assert.ErrorIs(t, err, shared.ErrValidation)
			gw.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestExport_CSV(t *testing.T) {
	gw := acmeGateway()

	doc, err := newTestService(gw).Export(context.Background(), Query{}, export.FormatCSV)
	require.NoError(t, err)
	assert.Regexp(t, `^saldo-odberatelu-\d{4}-\d{2}-\d{2}\.csv$`, doc.Filename)
	body := string(doc.Body)
	assert.True(t, strings.HasPrefix(body, "\ufeffKód odběratele;Název odběratele;"))
	assert.True(t, strings.HasSuffix(body, "\r\nACME;ACME s.r.o.;800,00;0,00;800,00;2;1"), body)
	assert.False(t, strings.HasSuffix(body, "\r\n"), "no terminator after the last row")

	call := gw.Calls[0].Arguments.Get(2).(flexi.ListOptions)
	assert.True(t, strings.HasSuffix(call.Detail, ",kod"))
}

func TestExport_Empty(t *testing.T) {
	gw := new(MockGateway)
	gw.On("List", mock.Anything, reconciliation.BalanceEvidence, mock.Anything).Return(rows(), nil)

	doc, err := newTestService(gw).Export(context.Background(), Query{}, export.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "Žádná data k exportu", string(doc.Body))
}

func TestCompute_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, err := newTestService(acmeGateway()).Compute(context.Background(), Query{Year: 2025})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "balance.collect", spans[0].Name())
	attrs := spans[0].Attributes()
	assert.Contains(t, attrs, attribute.String(telemetry.SpanAttrFilterType, string(reconciliation.FilterReceivables)))
	assert.Contains(t, attrs, attribute.Int(telemetry.SpanAttrYear, 2025))
	assert.Contains(t, attrs, attribute.Int(telemetry.SpanAttrRows, 1))
}
