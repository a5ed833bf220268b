package parsers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"payment-reconciliation-service/internal/models"
	apperrors "payment-reconciliation-service/pkg/errors"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func TestParseTransactionsFile(t *testing.T) {
	path := writeTempFile(t, "transactions.csv", `transaction_id,amount,currency,date,description,counterparty,direction
TX1,1000.00,USD,2024-03-15,PAYMENT INV-1001,Acme Corporation,CREDIT
TX2,"2,500.50",USD,2024-03-16,WIRE TRANSFER,Globex Media,CR
`)

	parser := NewTransactionParser(nil, nil)
	transactions, stats, err := parser.ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(transactions))
	}
	if stats.RecordsValid != 2 || stats.HasErrors() {
		t.Errorf("unexpected stats: %s", stats)
	}

	tx := transactions[0]
	if tx.ID != "TX1" {
		t.Errorf("unexpected id %s", tx.ID)
	}
	if !tx.Amount.Equal(decimal.NewFromFloat(1000.00)) {
		t.Errorf("unexpected amount %s", tx.Amount)
	}
	if tx.Direction != models.DirectionCredit {
		t.Errorf("unexpected direction %s", tx.Direction)
	}
	if tx.Counterparty != "Acme Corporation" {
		t.Errorf("unexpected counterparty %q", tx.Counterparty)
	}

	// Thousand separators and short direction codes are accepted
	if !transactions[1].Amount.Equal(decimal.NewFromFloat(2500.50)) {
		t.Errorf("unexpected amount %s", transactions[1].Amount)
	}
	if transactions[1].Direction != models.DirectionCredit {
		t.Errorf("unexpected direction %s", transactions[1].Direction)
	}
}

func TestParseTransactionsAliasHeaders(t *testing.T) {
	path := writeTempFile(t, "export.csv", `txn_id,value,posting_date,memo,originator
TX1,750.25,2024-03-15,ACH CREDIT,Acme Corporation
TX2,-120.00,2024-03-16,SERVICE FEE,Bank
`)

	parser := NewTransactionParser(nil, nil)
	transactions, _, err := parser.ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(transactions))
	}

	// Without a direction column the sign carries it
	if transactions[0].Direction != models.DirectionCredit {
		t.Errorf("positive amount should infer CREDIT, got %s", transactions[0].Direction)
	}
	if transactions[1].Direction != models.DirectionDebit {
		t.Errorf("negative amount should infer DEBIT, got %s", transactions[1].Direction)
	}
}

func TestParseTransactionsSkipsBadRows(t *testing.T) {
	path := writeTempFile(t, "transactions.csv", `transaction_id,amount,date,description,direction
TX1,1000.00,2024-03-15,PAYMENT,CREDIT
TX2,not-a-number,2024-03-15,PAYMENT,CREDIT
TX3,500.00,garbage-date,PAYMENT,CREDIT
TX4,250.00,2024-03-16,PAYMENT,CREDIT
`)

	parser := NewTransactionParser(nil, nil)
	transactions, stats, err := parser.ParseFile(path)
	if err != nil {
		t.Fatalf("bad rows must not fail the parse: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("expected 2 valid transactions, got %d", len(transactions))
	}
	if stats.RecordsParsed != 4 {
		t.Errorf("expected 4 parsed records, got %d", stats.RecordsParsed)
	}
	if len(stats.Errors) != 2 {
		t.Errorf("expected 2 recorded errors, got %d", len(stats.Errors))
	}
}

func TestParseTransactionsMissingColumn(t *testing.T) {
	path := writeTempFile(t, "transactions.csv", `transaction_id,date,description
TX1,2024-03-15,PAYMENT
`)

	parser := NewTransactionParser(nil, nil)
	_, _, err := parser.ParseFile(path)
	if err == nil {
		t.Fatal("expected an error for the missing amount column")
	}

	recErr, ok := apperrors.AsReconcilerError(err)
	if !ok {
		t.Fatalf("expected a categorized error, got %T", err)
	}
	if recErr.Code != apperrors.CodeMissingColumn {
		t.Errorf("expected %s, got %s", apperrors.CodeMissingColumn, recErr.Code)
	}
}

func TestParseTransactionsFileNotFound(t *testing.T) {
	parser := NewTransactionParser(nil, nil)
	_, _, err := parser.ParseFile(filepath.Join(t.TempDir(), "missing.csv"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}

	recErr, ok := apperrors.AsReconcilerError(err)
	if !ok {
		t.Fatalf("expected a categorized error, got %T", err)
	}
	if recErr.Code != apperrors.CodeFileNotFound {
		t.Errorf("expected %s, got %s", apperrors.CodeFileNotFound, recErr.Code)
	}
}

func TestParseInvoicesFile(t *testing.T) {
	path := writeTempFile(t, "invoices.csv", `invoice_id,invoice_number,company_name,amount_due,currency,due_date,status
I1,INV-1001,Acme Corporation,1000.00,USD,2024-03-20,Open
I2,INV-1002,Globex Media,2500.00,USD,2024-03-25,Unpaid
I3,INV-1003,Initech Systems,750.00,USD,2024-03-30,Settled
`)

	parser := NewInvoiceParser(nil, nil)
	invoices, stats, err := parser.ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(invoices) != 3 {
		t.Fatalf("expected 3 invoices, got %d", len(invoices))
	}
	if stats.RecordsValid != 3 {
		t.Errorf("unexpected stats: %s", stats)
	}

	if invoices[0].Number != "INV-1001" {
		t.Errorf("unexpected number %s", invoices[0].Number)
	}
	// Status synonyms normalize to the canonical states
	if invoices[1].Status != models.InvoiceStatusOpen {
		t.Errorf("UNPAID should normalize to OPEN, got %s", invoices[1].Status)
	}
	if invoices[2].Status != models.InvoiceStatusPaid {
		t.Errorf("SETTLED should normalize to PAID, got %s", invoices[2].Status)
	}
}

func TestParseInvoicesDuplicateID(t *testing.T) {
	path := writeTempFile(t, "invoices.csv", `invoice_id,invoice_number,company_name,amount_due,due_date
I1,INV-1001,Acme Corporation,1000.00,2024-03-20
I1,INV-1002,Acme Corporation,500.00,2024-03-25
`)

	parser := NewInvoiceParser(nil, nil)
	invoices, stats, err := parser.ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(invoices) != 1 {
		t.Fatalf("duplicate id must be dropped, got %d invoices", len(invoices))
	}
	if len(stats.Errors) != 1 {
		t.Errorf("expected the duplicate recorded as an error, got %d", len(stats.Errors))
	}
}

func TestLoadTransactionsJSON(t *testing.T) {
	path := writeTempFile(t, "transactions.json", `[
  {"id": "TX1", "amount": "1000.00", "currency": "USD", "date": "2024-03-15",
   "description": "PAYMENT INV-1001", "counterparty": "Acme Corporation", "direction": "CREDIT"}
]`)

	transactions, err := LoadTransactions(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(transactions))
	}
	if transactions[0].ID != "TX1" || transactions[0].Direction != models.DirectionCredit {
		t.Errorf("unexpected transaction %s", transactions[0])
	}
}

func TestLoadInvoicesJSON(t *testing.T) {
	path := writeTempFile(t, "invoices.json", `[
  {"id": "I1", "number": "INV-1001", "company_name": "Acme Corporation",
   "amount_due": "1000.00", "currency": "USD", "due_date": "2024-03-20", "status": "OPEN"}
]`)

	invoices, err := LoadInvoices(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(invoices) != 1 {
		t.Fatalf("expected 1 invoice, got %d", len(invoices))
	}
	if invoices[0].Number != "INV-1001" {
		t.Errorf("unexpected invoice %s", invoices[0])
	}
}

func TestLoadDispatchesByExtension(t *testing.T) {
	csvPath := writeTempFile(t, "transactions.csv", `transaction_id,amount,date,description,direction
TX1,1000.00,2024-03-15,PAYMENT,CREDIT
`)

	transactions, err := LoadTransactions(csvPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(transactions))
	}
}
