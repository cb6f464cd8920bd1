// Package evidence describes the accounting record types the console exposes.
package evidence

import (
	"regexp"
	"sort"

	"github.com/flexidesk/backend/internal/domain/shared"
)

// Category groups evidences in navigation.
type Category string

const (
	CategoryInvoicing Category = "invoicing"
	CategoryBanking   Category = "banking"
	CategoryCash      Category = "cash"
	CategoryContacts  Category = "contacts"
	CategoryWarehouse Category = "warehouse"
	CategoryOrders    Category = "orders"
	CategoryPricelist Category = "pricelist"
)

// Definition describes one evidence.
type Definition struct {
	Slug         string   `json:"slug"`
	Label        string   `json:"label"`
	LabelCs      string   `json:"labelCs"`
	Category     Category `json:"category"`
	ItemEvidence string   `json:"itemEvidence,omitempty"`
}

var slugRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

var registry = map[string]Definition{
	"faktura-vydana": {
		Slug: "faktura-vydana", Label: "Issued Invoices", LabelCs: "Faktury vydané",
		Category: CategoryInvoicing, ItemEvidence: "faktura-vydana-polozka",
	},
	"faktura-prijata": {
		Slug: "faktura-prijata", Label: "Received Invoices", LabelCs: "Faktury přijaté",
		Category: CategoryInvoicing, ItemEvidence: "faktura-prijata-polozka",
	},
	"banka": {
		Slug: "banka", Label: "Bank Transactions", LabelCs: "Banka", Category: CategoryBanking,
	},
	"pokladni-pohyb": {
		Slug: "pokladni-pohyb", Label: "Cash Transactions", LabelCs: "Pokladní pohyby", Category: CategoryCash,
	},
	"adresar": {
		Slug: "adresar", Label: "Address Book", LabelCs: "Adresář", Category: CategoryContacts,
	},
	"objednavka-prijata": {
		Slug: "objednavka-prijata", Label: "Received Orders", LabelCs: "Objednávky přijaté",
		Category: CategoryOrders, ItemEvidence: "objednavka-prijata-polozka",
	},
	"objednavka-vydana": {
		Slug: "objednavka-vydana", Label: "Issued Orders", LabelCs: "Objednávky vydané",
		Category: CategoryOrders, ItemEvidence: "objednavka-vydana-polozka",
	},
	"cenik": {
		Slug: "cenik", Label: "Price List", LabelCs: "Ceník", Category: CategoryPricelist,
	},
	"sklad": {
		Slug: "sklad", Label: "Warehouses", LabelCs: "Sklady", Category: CategoryWarehouse,
	},
	"skladova-karta": {
		Slug: "skladova-karta", Label: "Warehouse Cards", LabelCs: "Skladové karty", Category: CategoryWarehouse,
	},
}

// All returns the known evidences sorted by slug.
func All() []Definition {
	out := make([]Definition, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Lookup returns the definition for slug, if registered.
func Lookup(slug string) (Definition, bool) {
	d, ok := registry[slug]
	return d, ok
}

// ValidateSlug checks that slug is safe to place in a URL path. Unregistered
// but well-formed slugs are allowed so any server evidence can be browsed.
func ValidateSlug(slug string) error {
	if !slugRegex.MatchString(slug) {
		return shared.NewValidationError("invalid evidence name %q", slug)
	}
	return nil
}
