package parsers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/pkg/errors"
)

// LoadTransactions loads transactions from a CSV or JSON file, chosen by
// extension
func LoadTransactions(filePath string) ([]*models.Transaction, error) {
	if isJSON(filePath) {
		return loadTransactionsJSON(filePath)
	}
	transactions, _, err := NewTransactionParser(nil, nil).ParseFile(filePath)
	return transactions, err
}

// LoadInvoices loads invoices from a CSV or JSON file, chosen by extension
func LoadInvoices(filePath string) ([]*models.Invoice, error) {
	if isJSON(filePath) {
		return loadInvoicesJSON(filePath)
	}
	invoices, _, err := NewInvoiceParser(nil, nil).ParseFile(filePath)
	return invoices, err
}

func isJSON(filePath string) bool {
	return strings.EqualFold(filepath.Ext(filePath), ".json")
}

func loadTransactionsJSON(filePath string) ([]*models.Transaction, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.InputError(errors.CodeFileNotFound, filePath, err)
		}
		return nil, errors.InputError(errors.CodeInvalidFormat, filePath, err)
	}

	var transactions []*models.Transaction
	if err := json.Unmarshal(data, &transactions); err != nil {
		return nil, errors.InputError(errors.CodeInvalidFormat, filePath, err)
	}
	return transactions, nil
}

func loadInvoicesJSON(filePath string) ([]*models.Invoice, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.InputError(errors.CodeFileNotFound, filePath, err)
		}
		return nil, errors.InputError(errors.CodeInvalidFormat, filePath, err)
	}

	var invoices []*models.Invoice
	if err := json.Unmarshal(data, &invoices); err != nil {
		return nil, errors.InputError(errors.CodeInvalidFormat, filePath, err)
	}
	return invoices, nil
}
