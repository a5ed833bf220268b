package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction represents the direction of a bank transaction
type Direction string

const (
	// DirectionCredit represents an incoming payment
	DirectionCredit Direction = "CREDIT"
	// DirectionDebit represents an outgoing payment
	DirectionDebit Direction = "DEBIT"
)

// String returns the string representation of Direction
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is valid
func (d Direction) IsValid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// InvoiceStatus represents the lifecycle status of an invoice
type InvoiceStatus string

const (
	// InvoiceStatusOpen represents an unpaid invoice eligible for matching
	InvoiceStatusOpen InvoiceStatus = "OPEN"
	// InvoiceStatusPaid represents a settled invoice
	InvoiceStatusPaid InvoiceStatus = "PAID"
	// InvoiceStatusVoid represents a cancelled invoice
	InvoiceStatusVoid InvoiceStatus = "VOID"
)

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsValid checks if the invoice status is valid
func (s InvoiceStatus) IsValid() bool {
	return s == InvoiceStatusOpen || s == InvoiceStatusPaid || s == InvoiceStatusVoid
}

// Transaction represents a bank transaction record supplied by the caller.
// Transactions are immutable inputs; only credits participate in matching.
type Transaction struct {
	ID           string          `json:"id" csv:"id"`
	Amount       decimal.Decimal `json:"amount" csv:"amount"`
	Currency     string          `json:"currency" csv:"currency"`
	Date         time.Time       `json:"date" csv:"date"`
	Description  string          `json:"description" csv:"description"`
	Counterparty string          `json:"counterparty,omitempty" csv:"counterparty"`
	Direction    Direction       `json:"direction" csv:"direction"`
}

// NewTransaction creates a new Transaction instance
func NewTransaction(id string, amount decimal.Decimal, currency string, date time.Time, description, counterparty string, direction Direction) *Transaction {
	return &Transaction{
		ID:           id,
		Amount:       amount,
		Currency:     currency,
		Date:         date,
		Description:  description,
		Counterparty: counterparty,
		Direction:    direction,
	}
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}

	if t.Amount.IsZero() {
		return fmt.Errorf("transaction amount cannot be zero")
	}

	if !t.Direction.IsValid() {
		return fmt.Errorf("invalid transaction direction: %s", t.Direction)
	}

	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}

	return nil
}

// IsCredit returns true if the transaction is an incoming payment
func (t *Transaction) IsCredit() bool {
	return t.Direction == DirectionCredit
}

// AbsoluteAmount returns the absolute value of the transaction amount
func (t *Transaction) AbsoluteAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Amount: %s %s, Direction: %s, Date: %s}",
		t.ID, t.Amount.String(), t.Currency, t.Direction, t.Date.Format("2006-01-02"))
}

// MarshalJSON implements custom JSON marshaling for Transaction
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Amount: t.Amount.String(),
		Date:   t.Date.Format("2006-01-02"),
		Alias:  (*Alias)(t),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Transaction
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	t.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	t.Date, err = ParseTimeWithFormats(aux.Date)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}

	return nil
}

// Invoice represents an open invoice record supplied by the caller.
// Invoices are treated as immutable snapshots for the duration of a run.
type Invoice struct {
	ID          string          `json:"id" csv:"id"`
	Number      string          `json:"number" csv:"number"`
	CompanyName string          `json:"company_name" csv:"company_name"`
	AmountDue   decimal.Decimal `json:"amount_due" csv:"amount_due"`
	Currency    string          `json:"currency" csv:"currency"`
	DueDate     time.Time       `json:"due_date" csv:"due_date"`
	Status      InvoiceStatus   `json:"status" csv:"status"`
}

// NewInvoice creates a new Invoice instance
func NewInvoice(id, number, companyName string, amountDue decimal.Decimal, currency string, dueDate time.Time, status InvoiceStatus) *Invoice {
	return &Invoice{
		ID:          id,
		Number:      number,
		CompanyName: companyName,
		AmountDue:   amountDue,
		Currency:    currency,
		DueDate:     dueDate,
		Status:      status,
	}
}

// Validate performs basic validation on the Invoice
func (inv *Invoice) Validate() error {
	if strings.TrimSpace(inv.ID) == "" {
		return fmt.Errorf("invoice ID cannot be empty")
	}

	if inv.AmountDue.IsZero() || inv.AmountDue.IsNegative() {
		return fmt.Errorf("invoice amount due must be positive")
	}

	if !inv.Status.IsValid() {
		return fmt.Errorf("invalid invoice status: %s", inv.Status)
	}

	if inv.DueDate.IsZero() {
		return fmt.Errorf("invoice due date cannot be zero")
	}

	return nil
}

// IsOpen returns true if the invoice is eligible for matching
func (inv *Invoice) IsOpen() bool {
	return inv.Status == InvoiceStatusOpen
}

// String returns a string representation of the Invoice
func (inv *Invoice) String() string {
	return fmt.Sprintf("Invoice{ID: %s, Number: %s, Company: %s, AmountDue: %s %s, Due: %s, Status: %s}",
		inv.ID, inv.Number, inv.CompanyName, inv.AmountDue.String(), inv.Currency,
		inv.DueDate.Format("2006-01-02"), inv.Status)
}

// MarshalJSON implements custom JSON marshaling for Invoice
func (inv *Invoice) MarshalJSON() ([]byte, error) {
	type Alias Invoice
	return json.Marshal(&struct {
		AmountDue string `json:"amount_due"`
		DueDate   string `json:"due_date"`
		*Alias
	}{
		AmountDue: inv.AmountDue.String(),
		DueDate:   inv.DueDate.Format("2006-01-02"),
		Alias:     (*Alias)(inv),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Invoice
func (inv *Invoice) UnmarshalJSON(data []byte) error {
	type Alias Invoice
	aux := &struct {
		AmountDue string `json:"amount_due"`
		DueDate   string `json:"due_date"`
		*Alias
	}{
		Alias: (*Alias)(inv),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	inv.AmountDue, err = decimal.NewFromString(aux.AmountDue)
	if err != nil {
		return fmt.Errorf("invalid amount due format: %w", err)
	}

	inv.DueDate, err = ParseTimeWithFormats(aux.DueDate)
	if err != nil {
		return fmt.Errorf("invalid due date format: %w", err)
	}

	return nil
}

// Utility functions for type conversion and validation

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Remove common currency symbols and thousand separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseDirection parses and validates a transaction direction from string
func ParseDirection(s string) (Direction, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	switch s {
	case "CREDIT", "C", "CR", "IN":
		return DirectionCredit, nil
	case "DEBIT", "D", "DR", "OUT":
		return DirectionDebit, nil
	default:
		return "", fmt.Errorf("invalid transaction direction '%s': must be CREDIT or DEBIT", s)
	}
}

// ParseInvoiceStatus parses and validates an invoice status from string.
// CRM exports use several synonyms for the open state.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	switch s {
	case "OPEN", "UNPAID", "OUTSTANDING", "":
		return InvoiceStatusOpen, nil
	case "PAID", "SETTLED":
		return InvoiceStatusPaid, nil
	case "VOID", "VOIDED", "CANCELLED":
		return InvoiceStatusVoid, nil
	default:
		return "", fmt.Errorf("invalid invoice status '%s'", s)
	}
}

// ParseTimeWithFormats attempts to parse time from string using multiple common formats
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	// Common date formats used in bank and CRM exports
	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"01/02/2006 15:04:05",
		"01/02/2006",
		"02-01-2006",
		"2006/01/02",
		"Jan 2, 2006",
		"January 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// CompareAmountsWithTolerance compares two decimal amounts with a tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(tolerance)
}

// DaysBetween returns the absolute number of whole days between two dates
func DaysBetween(a, b time.Time) int {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

// CreateTransactionFromCSV creates a Transaction from CSV field values
func CreateTransactionFromCSV(id, amountStr, currency, dateStr, description, counterparty, directionStr string) (*Transaction, error) {
	amount, err := ParseDecimalFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid amount in CSV: %w", err)
	}

	direction, err := ParseDirection(directionStr)
	if err != nil {
		return nil, fmt.Errorf("invalid direction in CSV: %w", err)
	}

	date, err := ParseTimeWithFormats(dateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction date in CSV: %w", err)
	}

	tx := NewTransaction(strings.TrimSpace(id), amount, strings.ToUpper(strings.TrimSpace(currency)),
		date, strings.TrimSpace(description), strings.TrimSpace(counterparty), direction)

	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction data: %w", err)
	}

	return tx, nil
}

// CreateInvoiceFromCSV creates an Invoice from CSV field values
func CreateInvoiceFromCSV(id, number, companyName, amountStr, currency, dueDateStr, statusStr string) (*Invoice, error) {
	amount, err := ParseDecimalFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid amount due in CSV: %w", err)
	}

	status, err := ParseInvoiceStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid invoice status in CSV: %w", err)
	}

	dueDate, err := ParseTimeWithFormats(dueDateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid due date in CSV: %w", err)
	}

	invoice := NewInvoice(strings.TrimSpace(id), strings.TrimSpace(number), strings.TrimSpace(companyName),
		amount, strings.ToUpper(strings.TrimSpace(currency)), dueDate, status)

	if err := invoice.Validate(); err != nil {
		return nil, fmt.Errorf("invalid invoice data: %w", err)
	}

	return invoice, nil
}
