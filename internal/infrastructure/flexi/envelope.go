package flexi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is one untyped evidence row as returned by the server.
type Record map[string]any

// String returns the field as text. Numbers are rendered without exponent,
// missing and null fields return "".
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ListResult is a normalized list response.
type ListResult struct {
	Rows []Record `json:"rows"`
	// RowCount is set when the request asked for add-row-count
	RowCount *int `json:"rowCount,omitempty"`
}

// Truncated reports whether the server holds more rows than it returned.
func (r *ListResult) Truncated() bool {
	return r.RowCount != nil && *r.RowCount > len(r.Rows)
}

// WriteStats counts the per-record outcome of a write call.
type WriteStats struct {
	Created string `json:"created"`
	Updated string `json:"updated"`
	Deleted string `json:"deleted"`
	Skipped string `json:"skipped"`
	Failed  string `json:"failed"`
}

// WriteResultEntry is one per-record outcome.
type WriteResultEntry map[string]any

// WriteResult is the decoded body of a create/update response.
type WriteResult struct {
	Version string             `json:"@version,omitempty"`
	Success string             `json:"success,omitempty"`
	Stats   *WriteStats        `json:"stats,omitempty"`
	Results []WriteResultEntry `json:"results,omitempty"`
	Message string             `json:"message,omitempty"`
}

// ConnectionStatus is the result of TestConnection.
type ConnectionStatus struct {
	OK      bool   `json:"ok"`
	Version string `json:"version,omitempty"`
	Company string `json:"company,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Envelope wraps records the way the server expects write bodies.
func Envelope(evidence string, records any) map[string]any {
	return map[string]any{
		"winstrom": map[string]any{
			evidence: records,
		},
	}
}

// envelope is the "winstrom" wrapper around every response.
type envelope struct {
	Winstrom map[string]json.RawMessage `json:"winstrom"`
}

func decodeEnvelope(body []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.Winstrom == nil {
		return nil, fmt.Errorf("response is missing the winstrom envelope")
	}
	return &env, nil
}

func (e *envelope) rows(evidence string) ([]Record, error) {
	raw, ok := e.Winstrom[evidence]
	if !ok || string(raw) == "null" {
		return []Record{}, nil
	}
	var rows []Record
	if err := unmarshalNumbers(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", evidence, err)
	}
	if rows == nil {
		rows = []Record{}
	}
	return rows, nil
}

func (e *envelope) str(key string) string {
	raw, ok := e.Winstrom[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func (e *envelope) rowCount() *int {
	s := e.str("@rowCount")
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func (e *envelope) writeResult() *WriteResult {
	result := &WriteResult{
		Version: e.str("@version"),
		Success: e.str("success"),
		Message: e.str("message"),
	}
	if raw, ok := e.Winstrom["stats"]; ok {
		var stats WriteStats
		if json.Unmarshal(raw, &stats) == nil {
			result.Stats = &stats
		}
	}
	if raw, ok := e.Winstrom["results"]; ok {
		_ = unmarshalNumbers(raw, &result.Results)
	}
	return result
}

// unmarshalNumbers decodes keeping numbers as json.Number so amounts are not
// rounded through float64.
func unmarshalNumbers(raw []byte, v any) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	return dec.Decode(v)
}

// errorMessage extracts winstrom.message from an error body.
func errorMessage(body []byte) (string, any) {
	var decoded any
	if err := unmarshalNumbers(body, &decoded); err != nil {
		return "", nil
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return "", decoded
	}
	w, ok := obj["winstrom"].(map[string]any)
	if !ok {
		return "", decoded
	}
	msg, _ := w["message"].(string)
	return msg, decoded
}
