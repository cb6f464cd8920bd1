// Package reconciliation holds the receivable/payable balance rules and the
// bank payment to invoice matching rules. It works on typed projections of
// accounting records and has no knowledge of how they are fetched.
package reconciliation

// Row is a read-only view of one untyped accounting record.
type Row interface {
	String(field string) string
}

// Fetch limits
const (
	// FetchCeiling caps the rows pulled per ledger for balance computation
	FetchCeiling = 10000
	// PaymentFetchLimit caps the unmatched payments pulled for the export
	PaymentFetchLimit = 1000
	// InvoiceFetchLimit caps invoices pulled per variable symbol chunk
	InvoiceFetchLimit = 1000
	// VarSymChunkSize is how many variable symbols go into one "in" filter
	VarSymChunkSize = 50
)
