package reconciliation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Balance evidence and fields
const (
	BalanceEvidence = "saldo-k-datu"
	ModuleIssued    = "FAV"
	ModuleReceived  = "FAP"

	UnknownCode = "unknown"
	UnknownName = "Neznámá firma"
)

// BalanceFields is the detail projection requested for balance computation.
var BalanceFields = []string{"firma", "nazFirmy", "datSplat", "sumCelkem", "zbyvaUhradit"}

// Query defaults
const (
	DefaultMinBalance = 701
	DefaultPage       = 1
	DefaultPageSize   = 100
	MaxPageSize       = FetchCeiling
)

// FilterType selects which side of the ledger drives filtering and ordering.
type FilterType string

const (
	FilterReceivables FilterType = "receivables" // Counterparties that owe us
	FilterPayables    FilterType = "payables"    // Counterparties we owe
	FilterAll         FilterType = "all"         // Both, by absolute net
)

// IsValid checks if the filter type is known
func (f FilterType) IsValid() bool {
	switch f {
	case FilterReceivables, FilterPayables, FilterAll:
		return true
	}
	return false
}

// String returns the string representation of FilterType
func (f FilterType) String() string {
	return string(f)
}

// ParseFilterType parses s, defaulting to receivables when empty.
func ParseFilterType(s string) (FilterType, error) {
	if s == "" {
		return FilterReceivables, nil
	}
	f := FilterType(s)
	if !f.IsValid() {
		return "", shared.NewValidationError("filterType must be one of receivables, payables, all")
	}
	return f, nil
}

// keep reports whether b passes the minimum for this filter.
func (f FilterType) keep(b CounterpartyBalance, minimum decimal.Decimal) bool {
	if f == FilterReceivables {
		return b.Net.GreaterThanOrEqual(minimum)
	}
	return b.Net.Abs().GreaterThanOrEqual(minimum)
}

// compare orders a before b (negative), after b (positive) or equal (zero)
// on the primary key only.
func (f FilterType) compare(a, b CounterpartyBalance) int {
	switch f {
	case FilterPayables:
		return a.Net.Cmp(b.Net)
	case FilterAll:
		return b.Net.Abs().Cmp(a.Net.Abs())
	default:
		return b.Net.Cmp(a.Net)
	}
}

// DueDateRange renders the "datSplat between" predicate for a calendar year.
func DueDateRange(year int) (from, to string) {
	y := fmt.Sprintf("%04d", year)
	return y + "-01-01", y + "-12-31"
}

// CounterpartyBalance aggregates open items of one counterparty.
type CounterpartyBalance struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Receivables  decimal.Decimal `json:"receivables"`
	Payables     decimal.Decimal `json:"payables"`
	Net          decimal.Decimal `json:"net"`
	UnpaidCount  int             `json:"unpaidCount"`
	OverdueCount int             `json:"overdueCount"`
}

// LedgerEntry is one open item from the balance evidence.
type LedgerEntry struct {
	Code      string
	Name      string
	DueDate   string
	Remaining decimal.Decimal
}

// LedgerEntryFrom projects a raw row, applying defaults for missing fields.
func LedgerEntryFrom(r Row) LedgerEntry {
	code := StripCodePrefix(r.String("firma"))
	if code == "" {
		code = UnknownCode
	}
	name := r.String("nazFirmy")
	if name == "" {
		name = UnknownName
	}
	return LedgerEntry{
		Code:      code,
		Name:      name,
		DueDate:   r.String("datSplat"),
		Remaining: ParseAmount(r.String("zbyvaUhradit")),
	}
}

// IsOverdue reports whether the due date lies strictly before the start of
// the day containing now. Unparseable dates are never overdue.
func (e LedgerEntry) IsOverdue(now time.Time) bool {
	raw := FormatDate(e.DueDate)
	if raw == "" {
		return false
	}
	due, err := time.ParseInLocation("2006-01-02", raw, now.Location())
	if err != nil {
		return false
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return due.Before(midnight)
}

// Fold groups receivable and payable entries by counterparty code. The result
// is in first-seen order. Only receivables with a positive remaining amount
// count as unpaid or overdue.
func Fold(receivables, payables []LedgerEntry, now time.Time) []CounterpartyBalance {
	index := make(map[string]int)
	var out []CounterpartyBalance

	entry := func(e LedgerEntry) *CounterpartyBalance {
		i, ok := index[e.Code]
		if !ok {
			i = len(out)
			index[e.Code] = i
			out = append(out, CounterpartyBalance{Code: e.Code, Name: e.Name})
		}
		return &out[i]
	}

	for _, e := range receivables {
		b := entry(e)
		b.Receivables = b.Receivables.Add(e.Remaining)
		if !e.Remaining.IsPositive() {
			continue
		}
		b.UnpaidCount++
		if e.IsOverdue(now) {
			b.OverdueCount++
		}
	}
	for _, e := range payables {
		b := entry(e)
		b.Payables = b.Payables.Add(e.Remaining)
	}

	for i := range out {
		out[i].Net = out[i].Receivables.Sub(out[i].Payables)
	}
	return out
}

// Select filters balances by minimum and orders them for filter. Ties on the
// primary key fall back to Czech collation of the name, then the code.
func Select(balances []CounterpartyBalance, filter FilterType, minimum decimal.Decimal) []CounterpartyBalance {
	kept := make([]CounterpartyBalance, 0, len(balances))
	for _, b := range balances {
		if filter.keep(b, minimum) {
			kept = append(kept, b)
		}
	}

	col := collate.New(language.Czech)
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if c := filter.compare(a, b); c != 0 {
			return c < 0
		}
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c < 0
		}
		return strings.Compare(a.Code, b.Code) < 0
	})
	return kept
}

// Page is one page of a sorted list.
type Page[T any] struct {
	Items      []T
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// Paginate slices items for a 1-based page. Pages past the end are empty.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	total := len(items)
	p := Page[T]{
		Items:      []T{},
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
	start := (page - 1) * pageSize
	if start >= total {
		return p
	}
	end := min(start+pageSize, total)
	p.Items = items[start:end]
	return p
}

// BalanceHeaders are the export column titles.
var BalanceHeaders = []string{
	"Kód odběratele",
	"Název odběratele",
	"Pohledávky (Kč)",
	"Závazky (Kč)",
	"Saldo celkem (Kč)",
	"Nezaplacených dokladů",
	"Dokladů po splatnosti",
}

// BalanceEmptyMessage is exported in place of an empty balance table.
const BalanceEmptyMessage = "Žádná data k exportu"

// ExportRow renders b as one export line.
func (b CounterpartyBalance) ExportRow() []string {
	return []string{
		b.Code,
		b.Name,
		FormatAmount(b.Receivables),
		FormatAmount(b.Payables),
		FormatAmount(b.Net),
		strconv.Itoa(b.UnpaidCount),
		strconv.Itoa(b.OverdueCount),
	}
}
