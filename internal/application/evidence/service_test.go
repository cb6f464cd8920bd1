package evidence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/flexi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
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

func (m *MockGateway) Get(ctx context.Context, evidence, id string, opts flexi.GetOptions) (flexi.Record, error) {
	args := m.Called(ctx, evidence, id, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(flexi.Record), args.Error(1)
}

func (m *MockGateway) Create(ctx context.Context, evidence string, records []flexi.Record, dryRun bool) (*flexi.WriteResult, error) {
	args := m.Called(ctx, evidence, records, dryRun)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flexi.WriteResult), args.Error(1)
}

func (m *MockGateway) Update(ctx context.Context, evidence, id string, fields flexi.Record, dryRun bool) (*flexi.WriteResult, error) {
	args := m.Called(ctx, evidence, id, fields, dryRun)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flexi.WriteResult), args.Error(1)
}

func (m *MockGateway) Delete(ctx context.Context, evidence, id string) error {
	args := m.Called(ctx, evidence, id)
	return args.Error(0)
}

func (m *MockGateway) Sum(ctx context.Context, evidence, filter string) (flexi.Record, error) {
	args := m.Called(ctx, evidence, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(flexi.Record), args.Error(1)
}

func (m *MockGateway) TestConnection(ctx context.Context) flexi.ConnectionStatus {
	args := m.Called(ctx)
	return args.Get(0).(flexi.ConnectionStatus)
}

func TestList_Defaults(t *testing.T) {
	gw := new(MockGateway)
	gw.On("List", mock.Anything, "adresar", mock.MatchedBy(func(o flexi.ListOptions) bool {
		return o.Detail == "summary" && o.Limit == 20 && o.Start != nil && *o.Start == 0 && o.AddRowCount
	})).Return(&flexi.ListResult{Rows: []flexi.Record{}}, nil)

	_, err := NewService(gw).List(context.Background(), "adresar", ListQuery{})
	require.NoError(t, err)
	gw.AssertExpectations(t)
}

func TestList_PassesQuery(t *testing.T) {
	gw := new(MockGateway)
	gw.On("List", mock.Anything, "faktura-vydana", flexi.ListOptions{
		Filter:      "varSym = '1'",
		Detail:      "full",
		Limit:       5,
		Start:       flexi.Int(10),
		Order:       "kod@A",
		AddRowCount: true,
	}).Return(&flexi.ListResult{Rows: []flexi.Record{}}, nil)

	_, err := NewService(gw).List(context.Background(), "faktura-vydana", ListQuery{
		Filter: "varSym = '1'", Detail: "full", Limit: 5, Start: 10, Order: "kod@A",
	})
	require.NoError(t, err)
}

func TestSlugValidation(t *testing.T) {
	gw := new(MockGateway)
	svc := NewService(gw)
	ctx := context.Background()

	for _, slug := range []string{"", "Faktura", "../etc", "banka.json", "a b"} {
		_, err := svc.List(ctx, slug, ListQuery{})
		assert.ErrorIs(t, err, shared.ErrValidation, slug)
		_, err = svc.Sum(ctx, slug, "")
		assert.ErrorIs(t, err, shared.ErrValidation, slug)
		assert.ErrorIs(t, svc.Delete(ctx, slug, "1"), shared.ErrValidation, slug)
	}
	gw.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
}

func TestIDRequired(t *testing.T) {
	gw := new(MockGateway)
	svc := NewService(gw)
	ctx := context.Background()

	_, err := svc.Get(ctx, "banka", " ", "")
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Update(ctx, "banka", "", []byte(`{"popis":"x"}`), false)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.ErrorIs(t, svc.Delete(ctx, "banka", ""), shared.ErrValidation)
}

func TestCreate_ObjectOrArray(t *testing.T) {
	gw := new(MockGateway)
	gw.On("Create", mock.Anything, "adresar", mock.Anything, true).Return(&flexi.WriteResult{Success: "true"}, nil)
	svc := NewService(gw)

	_, err := svc.Create(context.Background(), "adresar", []byte(`{"kod":"ACME","nazev":"ACME"}`), true)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "adresar", []byte(` [{"kod":"A"},{"kod":"B"}]`), true)
	require.NoError(t, err)

	first := gw.Calls[0].Arguments.Get(2).([]flexi.Record)
	require.Len(t, first, 1)
	assert.Equal(t, "ACME", first[0]["kod"])
	second := gw.Calls[1].Arguments.Get(2).([]flexi.Record)
	assert.Len(t, second, 2)
}

func TestUpdate(t *testing.T) {
	gw := new(MockGateway)
	gw.On("Update", mock.Anything, "adresar", "42", flexi.Record{"nazev": "Nový", "ic": json.Number("12345678")}, false).
		Return(&flexi.WriteResult{Success: "true"}, nil)

	_, err := NewService(gw).Update(context.Background(), "adresar", "42", []byte(`{"nazev":"Nový","ic":12345678}`), false)
	require.NoError(t, err)
	gw.AssertExpectations(t)

	_, err = NewService(gw).Update(context.Background(), "adresar", "42", []byte(`[{"a":1},{"b":2}]`), false)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDecodeRecords_Invalid(t *testing.T) {
	for _, body := range []string{"", "  ", "[]", "null", "[null]", `"text"`, "{broken", "42"} {
		_, err := DecodeRecords([]byte(body))
		assert.ErrorIs(t, err, shared.ErrValidation, body)
	}
}

func TestRegistry(t *testing.T) {
	defs := NewService(new(MockGateway)).Registry()
	require.Len(t, defs, 10)
}

func TestTestConnection(t *testing.T) {
	gw := new(MockGateway)
	gw.On("TestConnection", mock.Anything).Return(flexi.ConnectionStatus{OK: true, Version: "2024.1", Company: "demo"})

	status := NewService(gw).TestConnection(context.Background())
	assert.True(t, status.OK)
	assert.Equal(t, "demo", status.Company)
}
