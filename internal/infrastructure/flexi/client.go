// Package flexi is the HTTP gateway to an ABRA Flexi accounting server.
//
// It builds Flexi REST URLs, authenticates with HTTP Basic credentials,
// unwraps the "winstrom" response envelope and turns failures into typed
// errors. A Client is immutable after construction and safe for concurrent use.
package flexi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flexidesk/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Client talks to one Flexi company.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	calls      *telemetry.Counter
	latency    *telemetry.Histogram
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for upstream call diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger.Named("flexi")
	}
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.GetMeterProvider().Meter(telemetry.TracerName)
	calls, err := telemetry.NewCounter(meter, "flexi_requests_total", "Upstream Flexi API calls", "{request}")
	if err != nil {
		return nil, err
	}
	latency, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "flexi_request_duration_seconds",
		Description: "Upstream Flexi API call latency",
		Unit:        "s",
		Boundaries:  telemetry.UpstreamDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	c.calls = calls
	c.latency = latency

	return c, nil
}

// Company returns the configured company identifier.
func (c *Client) Company() string {
	return c.cfg.Company
}

// List fetches rows of an evidence.
func (c *Client) List(ctx context.Context, evidence string, opts ListOptions) (*ListResult, error) {
	if opts.Limit < 0 {
		return nil, ErrInvalidLimit
	}
	url := c.buildURL(evidence, "", &opts)
	body, err := c.do(ctx, "list", evidence, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, &TransportError{Op: "decode", URL: url, Err: err}
	}
	rows, err := env.rows(evidence)
	if err != nil {
		return nil, &TransportError{Op: "decode", URL: url, Err: err}
	}
	return &ListResult{Rows: rows, RowCount: env.rowCount()}, nil
}

// Get fetches a single record by id or "code:..." reference.
func (c *Client) Get(ctx context.Context, evidence, id string, opts GetOptions) (Record, error) {
	url := c.buildURL(evidence, id, &ListOptions{Detail: opts.Detail, Relations: opts.Relations})
	body, err := c.do(ctx, "get", evidence, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, &TransportError{Op: "decode", URL: url, Err: err}
	}
	rows, err := env.rows(evidence)
	if err != nil {
		return nil, &TransportError{Op: "decode", URL: url, Err: err}
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, &NotFoundError{Evidence: evidence, ID: id}
	}
	return rows[0], nil
}

// Create posts one or more records.
func (c *Client) Create(ctx context.Context, evidence string, records []Record, dryRun bool) (*WriteResult, error) {
	url := c.buildURL(evidence, "", &ListOptions{DryRun: dryRun})
	return c.write(ctx, "create", evidence, http.MethodPost, url, Envelope(evidence, records))
}

// Update modifies an existing record. The id is injected into the body.
func (c *Client) Update(ctx context.Context, evidence, id string, fields Record, dryRun bool) (*WriteResult, error) {
	record := make(Record, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	record["id"] = id

	url := c.buildURL(evidence, id, &ListOptions{DryRun: dryRun})
	return c.write(ctx, "update", evidence, http.MethodPut, url, Envelope(evidence, []Record{record}))
}

// Put sends an already enveloped body to the evidence collection.
func (c *Client) Put(ctx context.Context, evidence string, payload any) (*WriteResult, error) {
	url := c.buildURL(evidence, "", nil)
	return c.write(ctx, "put", evidence, http.MethodPut, url, payload)
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, evidence, id string) error {
	url := c.buildURL(evidence, id, nil)
	_, err := c.do(ctx, "delete", evidence, http.MethodDelete, url, nil)
	return err
}

// Sum asks the server for an aggregate over the (optionally filtered) evidence.
func (c *Client) Sum(ctx context.Context, evidence, filter string) (Record, error) {
	url := c.sumURL(evidence, filter)
	body, err := c.do(ctx, "sum", evidence, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var out Record
	if err := unmarshalNumbers(body, &out); err != nil {
		return nil, &TransportError{Op: "decode", URL: url, Err: err}
	}
	return out, nil
}

// TestConnection probes the server. It never returns an error; failures are
// reported in the result.
func (c *Client) TestConnection(ctx context.Context) ConnectionStatus {
	url := c.cfg.BaseURL + "/c/" + c.cfg.Company + "/evidence-list.json"
	body, err := c.do(ctx, "test_connection", "evidence-list", http.MethodGet, url, nil)
	if err != nil {
		return ConnectionStatus{OK: false, Error: err.Error()}
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return ConnectionStatus{OK: false, Error: (&TransportError{Op: "decode", URL: url, Err: err}).Error()}
	}
	return ConnectionStatus{
		OK:      true,
		Version: env.str("@version"),
		Company: c.cfg.Company,
	}
}

func (c *Client) write(ctx context.Context, op, evidence, method, url string, payload any) (*WriteResult, error) {
	body, err := c.do(ctx, op, evidence, method, url, payload)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, &TransportError{Op: "decode", URL: url, Err: err}
	}
	return env.writeResult(), nil
}

// do performs one HTTP exchange and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op, evidence, method, url string, payload any) (body []byte, err error) {
	ctx, span := telemetry.StartSpan(ctx, "flexi."+op,
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrEvidence, evidence),
	)
	start := time.Now()
	status := 0
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			telemetry.RecordError(span, err)
		}
		telemetry.SetAttributes(span, telemetry.SpanAttrStatus, status)
		span.End()
		c.calls.Inc(ctx, telemetry.AttrOperation.String(op), telemetry.AttrEvidence.String(evidence), telemetry.AttrOutcome.String(outcome))
		c.latency.RecordDuration(ctx, time.Since(start), telemetry.AttrOperation.String(op), telemetry.AttrEvidence.String(evidence))
		c.logger.Debug("Flexi call",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("evidence", evidence),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
	}()

	var reqBody io.Reader
	if payload != nil {
		encoded, mErr := json.Marshal(payload)
		if mErr != nil {
			return nil, fmt.Errorf("flexi: failed to encode request body: %w", mErr)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("flexi: failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: url, Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	body, err = io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseSize))
	if err != nil {
		return nil, &TransportError{Op: op, URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, details := errorMessage(body)
		return nil, &GatewayError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			URL:        url,
			Body:       string(body),
			Message:    msg,
			Details:    details,
		}
	}
	return body, nil
}
