package matcher

import (
	"sort"
	"time"

	"payment-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// InvoiceIndex provides fast lookups over a set of open invoices. The index
// is built once per run and read concurrently by scoring workers; it is
// immutable after Build.
type InvoiceIndex struct {
	invoices []*models.Invoice

	// byAmount is sorted ascending by AmountDue for range queries
	byAmount []*models.Invoice

	// byNumber maps normalized invoice numbers to invoices. Re-issued
	// numbers can normalize identically, so a number may carry several
	// open invoices.
	byNumber map[string][]*models.Invoice

	// byCompany groups invoices by cleaned company name for subset search
	byCompany map[string][]*models.Invoice

	// byID for direct lookups during resolution
	byID map[string]*models.Invoice
}

// NewInvoiceIndex builds an index over the given invoices. Invoices that
// are not open are excluded; paid and void invoices never participate in
// matching.
func NewInvoiceIndex(invoices []*models.Invoice) *InvoiceIndex {
	index := &InvoiceIndex{
		byNumber:  make(map[string][]*models.Invoice),
		byCompany: make(map[string][]*models.Invoice),
		byID:      make(map[string]*models.Invoice),
	}

	for _, inv := range invoices {
		if inv == nil || inv.Status != models.InvoiceStatusOpen {
			continue
		}

		index.invoices = append(index.invoices, inv)
		index.byID[inv.ID] = inv

		if number := NormalizeInvoiceNumber(inv.Number); number != "" {
			index.byNumber[number] = append(index.byNumber[number], inv)
		}

		if company := CleanCompanyName(inv.CompanyName); company != "" {
			index.byCompany[company] = append(index.byCompany[company], inv)
		}
	}

	index.byAmount = make([]*models.Invoice, len(index.invoices))
	copy(index.byAmount, index.invoices)
	sort.Slice(index.byAmount, func(i, j int) bool {
		if !index.byAmount[i].AmountDue.Equal(index.byAmount[j].AmountDue) {
			return index.byAmount[i].AmountDue.LessThan(index.byAmount[j].AmountDue)
		}
		return index.byAmount[i].ID < index.byAmount[j].ID
	})

	return index
}

// Size returns the number of open invoices in the index
func (idx *InvoiceIndex) Size() int {
	return len(idx.invoices)
}

// All returns every open invoice in insertion order
func (idx *InvoiceIndex) All() []*models.Invoice {
	return idx.invoices
}

// ByID looks up an invoice by its identifier
func (idx *InvoiceIndex) ByID(id string) (*models.Invoice, bool) {
	inv, ok := idx.byID[id]
	return inv, ok
}

// FindByNumber returns every invoice whose normalized number equals or is
// contained in the given normalized description text. A shared number
// yields all of its invoices; ranking decides between them.
func (idx *InvoiceIndex) FindByNumber(normalizedText string) []*models.Invoice {
	if normalizedText == "" {
		return nil
	}

	var found []*models.Invoice
	for number, invoices := range idx.byNumber {
		if containsNumber(normalizedText, number) {
			found = append(found, invoices...)
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found
}

func containsNumber(text, number string) bool {
	if len(number) == 0 || len(number) > len(text) {
		return false
	}
	for i := 0; i+len(number) <= len(text); i++ {
		if text[i:i+len(number)] == number {
			return true
		}
	}
	return false
}

// FindByAmountRange returns invoices with AmountDue in [min, max], using
// binary search over the sorted index
func (idx *InvoiceIndex) FindByAmountRange(min, max decimal.Decimal) []*models.Invoice {
	if min.GreaterThan(max) {
		return nil
	}

	lo := sort.Search(len(idx.byAmount), func(i int) bool {
		return idx.byAmount[i].AmountDue.GreaterThanOrEqual(min)
	})
	hi := sort.Search(len(idx.byAmount), func(i int) bool {
		return idx.byAmount[i].AmountDue.GreaterThan(max)
	})

	if lo >= hi {
		return nil
	}

	result := make([]*models.Invoice, hi-lo)
	copy(result, idx.byAmount[lo:hi])
	return result
}

// FindByCompany returns the invoices grouped under a cleaned company name
func (idx *InvoiceIndex) FindByCompany(cleanedName string) []*models.Invoice {
	return idx.byCompany[cleanedName]
}

// CompanyGroups returns cleaned company names in deterministic order along
// with their invoice groups. Subset generation iterates groups rather than
// the full invoice set; invoices from unrelated companies are never summed
// together.
func (idx *InvoiceIndex) CompanyGroups() []CompanyGroup {
	names := make([]string, 0, len(idx.byCompany))
	for name := range idx.byCompany {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]CompanyGroup, 0, len(names))
	for _, name := range names {
		groups = append(groups, CompanyGroup{Name: name, Invoices: idx.byCompany[name]})
	}
	return groups
}

// CompanyGroup is a cleaned company name and its open invoices
type CompanyGroup struct {
	Name     string
	Invoices []*models.Invoice
}

// WithinDateWindow reports whether a transaction date falls within the
// configured window of an invoice due date
func WithinDateWindow(txDate, dueDate time.Time, rangeDays int) bool {
	if txDate.IsZero() || dueDate.IsZero() {
		return false
	}
	return models.DaysBetween(txDate, dueDate) <= rangeDays
}
