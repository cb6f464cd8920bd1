package reconciliation

import (
	"strings"

	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Matching evidences
const (
	PaymentEvidence         = "banka"
	IssuedInvoiceEvidence   = "faktura-vydana"
	ReceivedInvoiceEvidence = "faktura-prijata"

	UnmatchedPaymentFilter = "sparovano = false"
	PaymentOrder           = "datVyst@D"
)

// PaymentFields is the detail projection for unmatched payments.
var PaymentFields = []string{"id", "kod", "datVyst", "sumCelkem", "varSym", "popis", "sparovano", "firma", "typPohybuK"}

// InvoiceFields is the detail projection for invoice candidates.
var InvoiceFields = []string{"id", "kod", "datVyst", "datSplat", "sumCelkem", "varSym", "stavUhrK", "firma"}

// SourceType tells which invoice ledger a candidate comes from.
type SourceType string

const (
	SourceIssued   SourceType = "issued"   // faktura-vydana
	SourceReceived SourceType = "received" // faktura-prijata
)

// IsValid checks if the source type is known
func (s SourceType) IsValid() bool {
	return s == SourceIssued || s == SourceReceived
}

// Evidence returns the evidence name of the ledger.
func (s SourceType) Evidence() string {
	if s == SourceReceived {
		return ReceivedInvoiceEvidence
	}
	return IssuedInvoiceEvidence
}

// Label is the short display label used in the matching export.
func (s SourceType) Label() string {
	if s == SourceReceived {
		return "Přijatá"
	}
	return "Vydaná"
}

// ParseSourceType accepts issued/received or the evidence names.
func ParseSourceType(s string) (SourceType, error) {
	switch s {
	case string(SourceIssued), IssuedInvoiceEvidence:
		return SourceIssued, nil
	case string(SourceReceived), ReceivedInvoiceEvidence:
		return SourceReceived, nil
	}
	return "", shared.NewValidationError("unknown invoice source type %q", s)
}

// RemainderPolicy tells the server what to do with an unmatched difference.
type RemainderPolicy string

const (
	RemainderNo              RemainderPolicy = "ne"
	RemainderIgnore          RemainderPolicy = "ignorovat"
	RemainderPost            RemainderPolicy = "zauctovat"
	RemainderPartial         RemainderPolicy = "castecnaUhrada"
	RemainderPartialOrIgnore RemainderPolicy = "castecnaUhradaNeboIgnorovat"
	DefaultRemainder                         = RemainderIgnore
)

// IsValid checks if the policy is known
func (p RemainderPolicy) IsValid() bool {
	switch p {
	case RemainderNo, RemainderIgnore, RemainderPost, RemainderPartial, RemainderPartialOrIgnore:
		return true
	}
	return false
}

// Payment is an unmatched bank movement.
type Payment struct {
	ID           string
	Code         string
	Date         string
	Amount       string
	VarSym       string
	Company      string
	MovementType string
	Description  string
}

// PaymentFrom projects a banka row.
func PaymentFrom(r Row) Payment {
	return Payment{
		ID:           r.String("id"),
		Code:         r.String("kod"),
		Date:         FormatDate(r.String("datVyst")),
		Amount:       firstNonEmpty(r.String("sumCelkem"), "0"),
		VarSym:       strings.TrimSpace(r.String("varSym")),
		Company:      r.String("firma@showAs"),
		MovementType: r.String("typPohybuK@showAs"),
		Description:  r.String("popis"),
	}
}

// Invoice is an invoice candidate from either ledger.
type Invoice struct {
	ID      string
	Code    string
	Source  SourceType
	Issued  string
	Due     string
	Amount  string
	VarSym  string
	Company string
	Status  string
}

// InvoiceFrom projects an invoice row from the given ledger.
func InvoiceFrom(r Row, source SourceType) Invoice {
	return Invoice{
		ID:      r.String("id"),
		Code:    r.String("kod"),
		Source:  source,
		Issued:  FormatDate(r.String("datVyst")),
		Due:     FormatDate(r.String("datSplat")),
		Amount:  firstNonEmpty(r.String("sumCelkem"), "0"),
		VarSym:  r.String("varSym"),
		Company: r.String("firma@showAs"),
		Status:  firstNonEmpty(r.String("stavUhrK@showAs"), PaymentStatusLabel(r.String("stavUhrK"))),
	}
}

// UniqueVarSyms returns the distinct non-empty variable symbols in first-seen order.
func UniqueVarSyms(payments []Payment) []string {
	seen := make(map[string]struct{}, len(payments))
	var out []string
	for _, p := range payments {
		if p.VarSym == "" {
			continue
		}
		if _, ok := seen[p.VarSym]; ok {
			continue
		}
		seen[p.VarSym] = struct{}{}
		out = append(out, p.VarSym)
	}
	return out
}

// Chunk splits values into consecutive slices of at most size elements.
func Chunk(values []string, size int) [][]string {
	if size < 1 {
		size = VarSymChunkSize
	}
	chunks := make([][]string, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

// InvoiceIndex groups candidates by trimmed variable symbol, keeping insertion order.
type InvoiceIndex map[string][]Invoice

// Add appends invoices that carry a variable symbol.
func (idx InvoiceIndex) Add(invoices ...Invoice) {
	for _, inv := range invoices {
		vs := strings.TrimSpace(inv.VarSym)
		if vs == "" {
			continue
		}
		idx[vs] = append(idx[vs], inv)
	}
}

// MatchingHeaders are the export column titles.
var MatchingHeaders = []string{
	"Platba - Kód",
	"Platba - Datum",
	"Platba - Částka",
	"Platba - VS",
	"Platba - Firma",
	"Platba - Typ",
	"Platba - Popis",
	"Faktura - Kód",
	"Faktura - Typ",
	"Faktura - Datum vystavení",
	"Faktura - Datum splatnosti",
	"Faktura - Částka",
	"Faktura - VS",
	"Faktura - Firma",
	"Faktura - Stav úhrady",
}

// MatchingEmptyMessage is exported when there are no unmatched payments.
const MatchingEmptyMessage = "Zadna data k exportu"

// JoinRows emits one row per payment and candidate invoice. A payment without
// a variable symbol or without candidates yields one row with blank invoice
// columns.
func JoinRows(payments []Payment, idx InvoiceIndex) [][]string {
	rows := make([][]string, 0, len(payments))
	for _, p := range payments {
		left := []string{p.Code, p.Date, p.Amount, p.VarSym, p.Company, p.MovementType, p.Description}

		invoices := idx[p.VarSym]
		if p.VarSym == "" || len(invoices) == 0 {
			rows = append(rows, append(left, make([]string, 8)...))
			continue
		}
		for _, inv := range invoices {
			row := make([]string, 0, len(MatchingHeaders))
			row = append(row, left...)
			row = append(row, inv.Code, inv.Source.Label(), inv.Issued, inv.Due, inv.Amount, inv.VarSym, inv.Company, inv.Status)
			rows = append(rows, row)
		}
	}
	return rows
}

// InvoiceSelection is one invoice chosen to settle a payment.
type InvoiceSelection struct {
	InvoiceRef    string
	SourceType    SourceType
	PartialAmount *decimal.Decimal
}

// MatchInstruction settles a bank payment against selected invoices.
type MatchInstruction struct {
	PaymentID  string
	Selections []InvoiceSelection
	Remainder  RemainderPolicy
}

// Validate checks the instruction and fills the default remainder policy.
func (m *MatchInstruction) Validate() error {
	if strings.TrimSpace(m.PaymentID) == "" {
		return shared.NewValidationError("paymentId is required")
	}
	if len(m.Selections) == 0 {
		return shared.NewValidationError("at least one invoice selection is required")
	}
	for i, s := range m.Selections {
		if strings.TrimSpace(s.InvoiceRef) == "" {
			return shared.NewValidationError("invoiceSelections[%d].invoiceReference is required", i)
		}
		if !s.SourceType.IsValid() {
			return shared.NewValidationError("invoiceSelections[%d].sourceType is invalid", i)
		}
	}
	if m.Remainder == "" {
		m.Remainder = DefaultRemainder
	}
	if !m.Remainder.IsValid() {
		return shared.NewValidationError("unknown remainder policy %q", m.Remainder)
	}
	return nil
}

// Payload builds the banka write body. One selection is sent as an object,
// several as an array.
func (m *MatchInstruction) Payload() map[string]any {
	entries := make([]map[string]any, len(m.Selections))
	for i, s := range m.Selections {
		entry := map[string]any{"@type": s.SourceType.Evidence()}
		if s.PartialAmount != nil && !s.PartialAmount.IsZero() {
			entry["@castka"] = s.PartialAmount.String()
		}
		entry["$"] = s.InvoiceRef
		entries[i] = entry
	}

	var settled any = entries
	if len(entries) == 1 {
		settled = entries[0]
	}

	return map[string]any{
		"winstrom": map[string]any{
			PaymentEvidence: []map[string]any{{
				"id": m.PaymentID,
				"sparovani": map[string]any{
					"uhrazovanaFak": settled,
					"zbytek":        string(m.Remainder),
				},
			}},
		},
	}
}
