// Package evidence exposes generic access to any Flexi evidence.
package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/flexidesk/backend/internal/domain/evidence"
	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/flexi"
)

// List defaults
const (
	DefaultDetail = "summary"
	DefaultLimit  = 20
)

// Gateway is the part of the Flexi client the evidence browser needs.
type Gateway interface {
	List(ctx context.Context, evidence string, opts flexi.ListOptions) (*flexi.ListResult, error)
	Get(ctx context.Context, evidence, id string, opts flexi.GetOptions) (flexi.Record, error)
	Create(ctx context.Context, evidence string, records []flexi.Record, dryRun bool) (*flexi.WriteResult, error)
	Update(ctx context.Context, evidence, id string, fields flexi.Record, dryRun bool) (*flexi.WriteResult, error)
	Delete(ctx context.Context, evidence, id string) error
	Sum(ctx context.Context, evidence, filter string) (flexi.Record, error)
	TestConnection(ctx context.Context) flexi.ConnectionStatus
}

// ListQuery selects rows of an evidence. Zero values take the defaults.
type ListQuery struct {
	Filter string
	Detail string
	Limit  int
	Start  int
	Order  string
}

// Service proxies evidence operations with slug validation.
type Service struct {
	gateway Gateway
}

// NewService creates an evidence service
func NewService(gateway Gateway) *Service {
	return &Service{gateway: gateway}
}

// Registry returns the known evidences.
func (s *Service) Registry() []evidence.Definition {
	return evidence.All()
}

// TestConnection probes the server.
func (s *Service) TestConnection(ctx context.Context) flexi.ConnectionStatus {
	return s.gateway.TestConnection(ctx)
}

// List returns a page of rows with the server-side row count.
func (s *Service) List(ctx context.Context, slug string, q ListQuery) (*flexi.ListResult, error) {
	if err := evidence.ValidateSlug(slug); err != nil {
		return nil, err
	}
	if q.Detail == "" {
		q.Detail = DefaultDetail
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 0 {
		return nil, shared.NewValidationError("limit must be a positive integer")
	}
	if q.Start < 0 {
		return nil, shared.NewValidationError("start must not be negative")
	}
	return s.gateway.List(ctx, slug, flexi.ListOptions{
		Filter:      q.Filter,
		Detail:      q.Detail,
		Limit:       q.Limit,
		Start:       flexi.Int(q.Start),
		Order:       q.Order,
		AddRowCount: true,
	})
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, slug, id, detail string) (flexi.Record, error) {
	if err := evidence.ValidateSlug(slug); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	return s.gateway.Get(ctx, slug, id, flexi.GetOptions{Detail: detail})
}

// Create posts the records held in body, a JSON object or array of objects.
func (s *Service) Create(ctx context.Context, slug string, body []byte, dryRun bool) (*flexi.WriteResult, error) {
	if err := evidence.ValidateSlug(slug); err != nil {
		return nil, err
	}
	records, err := DecodeRecords(body)
	if err != nil {
		return nil, err
	}
	return s.gateway.Create(ctx, slug, records, dryRun)
}

// Update modifies the record id with the fields held in body.
func (s *Service) Update(ctx context.Context, slug, id string, body []byte, dryRun bool) (*flexi.WriteResult, error) {
	if err := evidence.ValidateSlug(slug); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	records, err := DecodeRecords(body)
	if err != nil {
		return nil, err
	}
	if len(records) != 1 {
		return nil, shared.NewValidationError("update takes a single JSON object")
	}
	return s.gateway.Update(ctx, slug, id, records[0], dryRun)
}

// Delete removes the record id.
func (s *Service) Delete(ctx context.Context, slug, id string) error {
	if err := evidence.ValidateSlug(slug); err != nil {
		return err
	}
	if err := requireID(id); err != nil {
		return err
	}
	return s.gateway.Delete(ctx, slug, id)
}

// Sum returns the server aggregate over the filtered evidence.
func (s *Service) Sum(ctx context.Context, slug, filter string) (flexi.Record, error) {
	if err := evidence.ValidateSlug(slug); err != nil {
		return nil, err
	}
	return s.gateway.Sum(ctx, slug, filter)
}

// DecodeRecords accepts a JSON object or a non-empty array of objects.
func DecodeRecords(body []byte) ([]flexi.Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, shared.NewValidationError("request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if body[0] == '[' {
		var records []flexi.Record
		if err := dec.Decode(&records); err != nil {
			return nil, shared.NewValidationError("invalid JSON body: %v", err)
		}
		if len(records) == 0 {
			return nil, shared.NewValidationError("request body must contain at least one record")
		}
		for i, r := range records {
			if r == nil {
				return nil, shared.NewValidationError("record %d must be an object", i)
			}
		}
		return records, nil
	}

	var record flexi.Record
	if err := dec.Decode(&record); err != nil {
		return nil, shared.NewValidationError("invalid JSON body: %v", err)
	}
	if record == nil {
		return nil, shared.NewValidationError("request body must be a JSON object or array")
	}
	return []flexi.Record{record}, nil
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return shared.NewValidationError("id is required")
	}
	return nil
}
