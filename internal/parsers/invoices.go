package parsers

import (
	"context"
	"io"

	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/pkg/errors"
	"payment-reconciliation-service/pkg/logger"
)

// InvoiceParser loads invoice CSV exports from billing systems
type InvoiceParser struct {
	*baseParser
	mapping *ColumnMapping
}

// DefaultInvoiceMapping covers the column names common billing exports use
// for each invoice field
func DefaultInvoiceMapping() *ColumnMapping {
	return &ColumnMapping{Aliases: map[string][]string{
		"id":           {"invoice_id", "id"},
		"number":       {"invoice_number", "number", "reference"},
		"company_name": {"company_name", "customer", "customer_name", "client"},
		"amount_due":   {"amount_due", "amount", "total", "balance"},
		"currency":     {"currency", "ccy"},
		"due_date":     {"due_date", "date_due", "payment_due"},
		"status":       {"status", "state"},
	}}
}

// NewInvoiceParser creates an invoice parser. A nil mapping uses the
// default column aliases.
func NewInvoiceParser(config *ParseConfig, mapping *ColumnMapping) *InvoiceParser {
	if mapping == nil {
		mapping = DefaultInvoiceMapping()
	}
	return &InvoiceParser{
		baseParser: newBaseParser(config, "invoice_parser"),
		mapping:    mapping,
	}
}

// ParseFile parses an invoice CSV file
func (ip *InvoiceParser) ParseFile(filePath string) ([]*models.Invoice, *ParseStats, error) {
	return ip.ParseFileWithContext(context.Background(), filePath)
}

// ParseFileWithContext parses an invoice CSV file with cancellation
// support
func (ip *InvoiceParser) ParseFileWithContext(ctx context.Context, filePath string) ([]*models.Invoice, *ParseStats, error) {
	ip.log.WithField("file_path", filePath).Info("Parsing invoices")

	file, reader, err := ip.openFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	parseCtx := newParseContext(ctx)
	stats := &ParseStats{}

	required := []string{"id", "number", "company_name", "amount_due", "due_date"}
	if err := ip.readHeaders(reader, parseCtx, ip.mapping, required); err != nil {
		return nil, stats, err
	}

	var invoices []*models.Invoice
	seen := make(map[string]bool)

	for {
		if parseCtx.isCancelled() {
			return invoices, stats, ctx.Err()
		}

		record, err := ip.readRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			parseCtx.addError("record", "", "unreadable row", err)
			continue
		}
		stats.RecordsParsed++

		inv, parseErr := ip.fromRecord(record, parseCtx)
		if parseErr != nil {
			parseCtx.Errors = append(parseCtx.Errors, parseErr)
			continue
		}

		if err := inv.Validate(); err != nil {
			parseCtx.addError("invoice", inv.ID, "validation failed", err)
			continue
		}

		if seen[inv.ID] {
			parseCtx.addError("invoice", inv.ID, "duplicate invoice id",
				errors.InputError(errors.CodeDuplicateID, inv.ID, nil))
			continue
		}
		seen[inv.ID] = true

		invoices = append(invoices, inv)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber
	stats.Errors = parseCtx.Errors

	ip.log.WithFields(logger.Fields{
		"file_path":     filePath,
		"records_valid": stats.RecordsValid,
		"errors":        len(stats.Errors),
	}).Info("Invoice parsing complete")

	if stats.HasErrors() {
		ip.log.WithField("sample_errors", stats.SampleErrors(3)).Warn("Some rows were skipped")
	}

	return invoices, stats, nil
}

func (ip *InvoiceParser) fromRecord(record []string, parseCtx *parseContext) (*models.Invoice, *ParseError) {
	id := ip.mapping.Value(record, parseCtx, "id")

	inv, err := models.CreateInvoiceFromCSV(
		id,
		ip.mapping.Value(record, parseCtx, "number"),
		ip.mapping.Value(record, parseCtx, "company_name"),
		ip.mapping.Value(record, parseCtx, "amount_due"),
		ip.mapping.Value(record, parseCtx, "currency"),
		ip.mapping.Value(record, parseCtx, "due_date"),
		ip.mapping.Value(record, parseCtx, "status"),
	)
	if err != nil {
		return nil, &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   "invoice",
			Value:   id,
			Message: "invalid invoice row",
			Err:     errors.InputError(errors.CodeInvalidFormat, id, err),
		}
	}

	return inv, nil
}
