package flexi

import (
	"net/url"
	"strconv"
	"strings"
)

// ListOptions are the query parameters accepted by List.
type ListOptions struct {
	// Filter is a Flexi filter expression, e.g. "datVyst > '2024-01-01'"
	Filter string
	// Detail is id, summary, full or custom:field,field
	Detail string
	// Limit must be positive when set; zero leaves the server default
	Limit int
	Start *int
	// Order is a sort expression such as "datVyst@D"
	Order       string
	Relations   []string
	AddRowCount bool
	DryRun      bool
}

// GetOptions are the query parameters accepted by Get.
type GetOptions struct {
	Detail    string
	Relations []string
}

// Int returns a pointer to v, for optional numeric options such as Start.
func Int(v int) *int {
	return &v
}

func (c *Client) buildURL(evidence, id string, opts *ListOptions) string {
	var b strings.Builder
	b.WriteString(c.cfg.BaseURL)
	b.WriteString("/c/")
	b.WriteString(url.PathEscape(c.cfg.Company))
	b.WriteString("/")
	b.WriteString(evidence)

	if opts != nil && opts.Filter != "" {
		b.WriteString("/(")
		b.WriteString(escapeFilter(opts.Filter))
		b.WriteString(")")
	}
	if id != "" {
		b.WriteString("/")
		b.WriteString(url.PathEscape(id))
	}
	b.WriteString(".json")

	if opts == nil {
		return b.String()
	}

	params := url.Values{}
	if opts.Detail != "" {
		params.Set("detail", opts.Detail)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Start != nil {
		params.Set("start", strconv.Itoa(*opts.Start))
	}
	if opts.Order != "" {
		params.Set("order", opts.Order)
	}
	if len(opts.Relations) > 0 {
		params.Set("relations", strings.Join(opts.Relations, ","))
	}
	if opts.AddRowCount {
		params.Set("add-row-count", "true")
	}
	if opts.DryRun {
		params.Set("dry-run", "true")
	}
	if qs := params.Encode(); qs != "" {
		b.WriteString("?")
		b.WriteString(qs)
	}
	return b.String()
}

func (c *Client) sumURL(evidence, filter string) string {
	var b strings.Builder
	b.WriteString(c.cfg.BaseURL)
	b.WriteString("/c/")
	b.WriteString(url.PathEscape(c.cfg.Company))
	b.WriteString("/")
	b.WriteString(evidence)
	if filter != "" {
		b.WriteString("/(")
		b.WriteString(escapeFilter(filter))
		b.WriteString(")")
	}
	b.WriteString("/$sum.json")
	return b.String()
}

// escapeFilter percent-encodes a filter expression for use as a path
// segment. Spaces become %20 and quotes stay readable for the server.
func escapeFilter(filter string) string {
	return strings.ReplaceAll(url.PathEscape(filter), "%27", "'")
}

// Quote renders s as a single-quoted filter literal, doubling embedded quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// In renders a "field in ('a','b')" predicate.
func In(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Quote(v)
	}
	return field + " in (" + strings.Join(quoted, ",") + ")"
}

// Between renders a "field between 'from' 'to'" predicate.
func Between(field, from, to string) string {
	return field + " between " + Quote(from) + " " + Quote(to)
}

// And joins non-empty predicates with "and".
func And(predicates ...string) string {
	parts := make([]string, 0, len(predicates))
	for _, p := range predicates {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " and ")
}

// Custom builds a "custom:a,b,c" detail selector.
func Custom(fields ...string) string {
	return "custom:" + strings.Join(fields, ",")
}
