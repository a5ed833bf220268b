// Command dataset_generator produces paired transaction and invoice CSV
// fixtures for exercising the reconciliation engine at volume. The two
// files are generated together so a configurable share of transactions
// has a deliberate counterpart on the invoice side.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var companies = []string{
	"Acme Corporation",
	"Globex Media LLC",
	"Initech Systems Inc",
	"Umbrella Logistics",
	"Stark Industrial Supply",
	"Wayne Food Services",
	"Tyrell Analytics",
	"Soylent Packaging Corp",
	"Cyberdyne Tooling",
	"Oscorp Freight Lines",
}

var descriptionTemplates = []string{
	"ORIG CO NAME:%s ORIG ID:%07d SEC:CCD",
	"WIRE TRANSFER B/O: %s REF: %06d",
	"ACH CREDIT %s",
	"STRIPE TRANSFER %s",
	"INCOMING PAYMENT FROM: %s REF: %06d",
}

type generator struct {
	rng        *rand.Rand
	startDate  time.Time
	endDate    time.Time
	matchRatio float64
	multiRatio float64
	feeNoise   bool
}

type pair struct {
	transaction []string
	invoices    [][]string
}

func main() {
	var (
		transactionsOut = flag.String("transactions", "generated_transactions.csv", "Transaction CSV output path")
		invoicesOut     = flag.String("invoices", "generated_invoices.csv", "Invoice CSV output path")
		count           = flag.Int("count", 500, "Number of transactions to generate")
		matchRatio      = flag.Float64("match-ratio", 0.8, "Share of transactions with a matching invoice")
		multiRatio      = flag.Float64("multi-ratio", 0.1, "Share of matched transactions paying several invoices")
		feeNoise        = flag.Bool("fee-noise", true, "Subtract small processor fees from matched amounts")
		startDate       = flag.String("start-date", "2024-01-01", "Start date (YYYY-MM-DD)")
		endDate         = flag.String("end-date", "2024-06-30", "End date (YYYY-MM-DD)")
		seed            = flag.Int64("seed", 42, "Random seed for reproducible output")
	)
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Fatalf("Invalid end date: %v", err)
	}

	gen := &generator{
		rng:        rand.New(rand.NewSource(*seed)),
		startDate:  start,
		endDate:    end,
		matchRatio: *matchRatio,
		multiRatio: *multiRatio,
		feeNoise:   *feeNoise,
	}

	var transactions [][]string
	var invoices [][]string
	invoiceSeq := 1

	for i := 1; i <= *count; i++ {
		p := gen.generatePair(i, &invoiceSeq)
		transactions = append(transactions, p.transaction)
		invoices = append(invoices, p.invoices...)
	}

	// Unmatched open invoices keep the unmatched-invoice path exercised
	for i := 0; i < *count/10; i++ {
		invoices = append(invoices, gen.generateInvoice(&invoiceSeq, gen.pickCompany(), gen.randomAmount(), "OPEN"))
	}

	if err := writeCSV(*transactionsOut,
		[]string{"transaction_id", "amount", "currency", "date", "description", "counterparty", "direction"},
		transactions); err != nil {
		log.Fatalf("Failed to write transactions: %v", err)
	}
	if err := writeCSV(*invoicesOut,
		[]string{"invoice_id", "invoice_number", "company_name", "amount_due", "currency", "due_date", "status"},
		invoices); err != nil {
		log.Fatalf("Failed to write invoices: %v", err)
	}

	fmt.Printf("Generated %d transactions -> %s\n", len(transactions), *transactionsOut)
	fmt.Printf("Generated %d invoices -> %s\n", len(invoices), *invoicesOut)
}

func (g *generator) generatePair(seq int, invoiceSeq *int) pair {
	company := g.pickCompany()
	date := g.randomDate()
	txID := fmt.Sprintf("TX-%06d", seq)

	if g.rng.Float64() >= g.matchRatio {
		// Unmatched: no invoice counterpart
		return pair{transaction: []string{
			txID,
			g.randomAmount().StringFixed(2),
			"USD",
			date.Format("2006-01-02"),
			g.describe(company),
			company,
			"CREDIT",
		}}
	}

	invoiceCount := 1
	if g.rng.Float64() < g.multiRatio {
		invoiceCount = 2 + g.rng.Intn(2)
	}

	total := decimal.Zero
	var invoiceRows [][]string
	for i := 0; i < invoiceCount; i++ {
		amount := g.randomAmount()
		total = total.Add(amount)
		invoiceRows = append(invoiceRows, g.generateInvoice(invoiceSeq, company, amount, "OPEN"))
	}

	paid := total
	if g.feeNoise && g.rng.Float64() < 0.3 {
		// Processor fees shave a few cents off the settled amount
		fee := decimal.NewFromInt(int64(g.rng.Intn(95) + 5)).Div(decimal.NewFromInt(100))
		paid = total.Sub(fee)
	}

	description := g.describe(company)
	if invoiceCount == 1 && g.rng.Float64() < 0.4 {
		// Some payers reference the invoice number in the memo
		description = description + " " + invoiceRows[0][1]
	}

	return pair{
		transaction: []string{
			txID,
			paid.StringFixed(2),
			"USD",
			date.Format("2006-01-02"),
			description,
			company,
			"CREDIT",
		},
		invoices: invoiceRows,
	}
}

func (g *generator) generateInvoice(seq *int, company string, amount decimal.Decimal, status string) []string {
	id := fmt.Sprintf("INV-ID-%06d", *seq)
	number := fmt.Sprintf("INV-2024-%04d", *seq)
	*seq++

	return []string{
		id,
		number,
		company,
		amount.StringFixed(2),
		"USD",
		g.randomDate().Format("2006-01-02"),
		status,
	}
}

func (g *generator) pickCompany() string {
	return companies[g.rng.Intn(len(companies))]
}

func (g *generator) randomAmount() decimal.Decimal {
	cents := g.rng.Int63n(5_000_000) + 1000
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}

func (g *generator) randomDate() time.Time {
	span := int(g.endDate.Sub(g.startDate).Hours() / 24)
	return g.startDate.AddDate(0, 0, g.rng.Intn(span+1))
}

func (g *generator) describe(company string) string {
	template := descriptionTemplates[g.rng.Intn(len(descriptionTemplates))]
	upper := strings.ToUpper(company)
	if strings.Count(template, "%") > 1 {
		return fmt.Sprintf(template, upper, g.rng.Intn(1_000_000))
	}
	return fmt.Sprintf(template, upper)
}

func writeCSV(path string, headers []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
