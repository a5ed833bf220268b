package matcher

import (
	"regexp"
	"strings"
)

// Bank counterparty strings are abbreviated and garbled relative to CRM
// company names ("TERRA CITY CTR LLC ORIG ID:123" vs "Terra City Center"),
// so every name comparison goes through the normalization below first.

var (
	nonWordPattern    = regexp.MustCompile(`[^\w\s]`)
	trailingIDPattern = regexp.MustCompile(`\s+\d{9,}`)
	origIDPattern     = regexp.MustCompile(`\s+ORIG ID:.*`)

	// Patterns banks use to embed the originator in wire/ACH descriptions
	counterpartyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`ORIG CO NAME:(.+?)(?:\s+ORIG ID:|$)`),
		regexp.MustCompile(`B/O:\s*(.+?)(?:\s+REF:|$)`),
		regexp.MustCompile(`FROM:\s*(.+?)(?:\s+REF:|$)`),
	}
)

// corporateSuffixes are removed before comparing company cores. Order matters:
// longer phrases first so "REAL ESTATE" goes before "REAL".
var corporateSuffixes = []string{
	"REAL ESTATE", "REALTY",
	"CORPORATION", "CORP",
	"LIMITED", "LTD", "LLP", "LLC", "LP", "INC",
	"OWNERSHIP", "OWNERS", "OWNER",
	"PROPERTIES", "PROPERTY", "PROP",
	"HOLDINGS", "HOLDING", "GROUP",
	"INVESTMENTS", "INVESTMENT", "INVEST",
	"MANAGEMENT", "MGMT", "MGT",
	"PARTNERS", "PARTNER",
	"ASSOCIATES", "ASSOC",
	"ENTERPRISES", "ENTERPRISE",
	"DEVELOPMENT", "DEV",
	"VENTURES", "VENTURE",
	"CAPITAL", "CAP",
	"COMPANY", "CO",
	"TRUST", "TR",
	"FUNDS", "FUND",
	"MF",
}

// stopWords are ignored when comparing company names word by word
var stopWords = map[string]bool{
	"llc": true, "inc": true, "corp": true, "ltd": true, "lp": true, "llp": true,
	"the": true, "of": true, "and": true, "at": true, "in": true, "on": true,
	"for": true, "a": true, "an": true,
	"owner": true, "owners": true, "co": true, "company": true,
	"properties": true, "property": true, "group": true, "holdings": true,
	"management": true, "mgmt": true, "partners": true, "associates": true,
	"investments": true, "investment": true, "enterprises": true,
	"real": true, "estate": true, "realty": true, "development": true,
	"capital": true, "ventures": true, "trust": true, "fund": true,
}

// CleanCompanyName lowercases a name, strips corporate suffixes and
// punctuation, and collapses whitespace
func CleanCompanyName(name string) string {
	if name == "" {
		return ""
	}

	cleaned := nonWordPattern.ReplaceAllString(strings.ToUpper(name), " ")
	cleaned = " " + strings.Join(strings.Fields(cleaned), " ") + " "
	for _, suffix := range corporateSuffixes {
		cleaned = strings.ReplaceAll(cleaned, " "+suffix+" ", " ")
	}

	return strings.Join(strings.Fields(strings.ToLower(cleaned)), " ")
}

// MeaningfulWords returns the set of words in a company name that carry
// identity, filtering generic business terms
func MeaningfulWords(name string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(nonWordPattern.ReplaceAllString(name, " "))) {
		if !stopWords[w] {
			words[w] = true
		}
	}
	return words
}

// ExtractCounterparty pulls an originator name out of a raw bank
// description when the counterparty field is empty. Falls back to a prefix
// of the description.
func ExtractCounterparty(description string) string {
	for _, pattern := range counterpartyPatterns {
		if m := pattern.FindStringSubmatch(description); m != nil {
			company := strings.TrimSpace(m[1])
			company = origIDPattern.ReplaceAllString(company, "")
			company = trailingIDPattern.ReplaceAllString(company, "")
			return strings.TrimSpace(company)
		}
	}

	if len(description) > 50 {
		return description[:50]
	}
	return description
}

// NormalizeInvoiceNumber uppercases an invoice number and drops separator
// characters so that "inv 2024 0042" matches "INV-2024-0042"
func NormalizeInvoiceNumber(number string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(number) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Processor describes a known payment processor detected from transaction
// description keywords
type Processor struct {
	Name       string
	Keywords   []string
	FeePercent float64
}

// knownProcessors is the keyword table for processor detection. Payments
// routed through a processor can arrive with a small fee deducted, which
// justifies a mildly wider amount tolerance.
var knownProcessors = []Processor{
	{Name: "stripe", Keywords: []string{"stripe", "st-"}, FeePercent: 3.5},
	{Name: "avidpay", Keywords: []string{"avidpay"}, FeePercent: 1.0},
	{Name: "ach", Keywords: []string{"ach", "sec:ccd", "sec:ppd"}},
	{Name: "wire", Keywords: []string{"fedwire", "chips", "wire"}},
	{Name: "rtp", Keywords: []string{"real time payment"}},
	{Name: "zelle", Keywords: []string{"zelle"}},
	{Name: "amex", Keywords: []string{"american express"}},
}

// DetectProcessor scans a transaction description for processor keywords.
// Returns nil when no processor is recognized.
func DetectProcessor(description string) *Processor {
	desc := strings.ToLower(description)
	for i := range knownProcessors {
		for _, keyword := range knownProcessors[i].Keywords {
			if strings.Contains(desc, keyword) {
				return &knownProcessors[i]
			}
		}
	}
	return nil
}

// StripProcessorNames removes processor names from a cleaned description so
// they do not pollute company-name similarity. Only whole words are
// removed; "beach" keeps its "ach".
func StripProcessorNames(cleaned string) string {
	processorWords := make(map[string]bool, len(knownProcessors))
	for i := range knownProcessors {
		processorWords[knownProcessors[i].Name] = true
	}

	var kept []string
	for _, word := range strings.Fields(cleaned) {
		if !processorWords[word] {
			kept = append(kept, word)
		}
	}
	return strings.Join(kept, " ")
}
