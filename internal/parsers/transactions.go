package parsers

import (
	"context"
	"io"
	"strings"

	"payment-reconciliation-service/internal/models"
	"payment-reconciliation-service/pkg/errors"
	"payment-reconciliation-service/pkg/logger"
)

// TransactionParser loads bank transaction CSV exports
type TransactionParser struct {
	*baseParser
	mapping *ColumnMapping
}

// DefaultTransactionMapping covers the column names common bank exports
// use for each transaction field
func DefaultTransactionMapping() *ColumnMapping {
	return &ColumnMapping{Aliases: map[string][]string{
		"id":           {"transaction_id", "id", "txn_id", "reference"},
		"amount":       {"amount", "value", "transaction_amount"},
		"currency":     {"currency", "ccy"},
		"date":         {"date", "posting_date", "transaction_date", "value_date"},
		"description":  {"description", "memo", "details", "narrative"},
		"counterparty": {"counterparty", "payer", "originator", "name"},
		"direction":    {"direction", "type", "dr_cr", "credit_debit"},
	}}
}

// NewTransactionParser creates a transaction parser. A nil mapping uses
// the default column aliases.
func NewTransactionParser(config *ParseConfig, mapping *ColumnMapping) *TransactionParser {
	if mapping == nil {
		mapping = DefaultTransactionMapping()
	}
	return &TransactionParser{
		baseParser: newBaseParser(config, "transaction_parser"),
		mapping:    mapping,
	}
}

// ParseFile parses a transaction CSV file
func (tp *TransactionParser) ParseFile(filePath string) ([]*models.Transaction, *ParseStats, error) {
	return tp.ParseFileWithContext(context.Background(), filePath)
}

// ParseFileWithContext parses a transaction CSV file with cancellation
// support. Rows that fail to parse or validate are recorded in the stats
// and skipped.
func (tp *TransactionParser) ParseFileWithContext(ctx context.Context, filePath string) ([]*models.Transaction, *ParseStats, error) {
	tp.log.WithField("file_path", filePath).Info("Parsing transactions")

	file, reader, err := tp.openFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	parseCtx := newParseContext(ctx)
	stats := &ParseStats{}

	required := []string{"id", "amount", "date", "description"}
	if err := tp.readHeaders(reader, parseCtx, tp.mapping, required); err != nil {
		return nil, stats, err
	}

	var transactions []*models.Transaction
	for {
		if parseCtx.isCancelled() {
			return transactions, stats, ctx.Err()
		}

		record, err := tp.readRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			parseCtx.addError("record", "", "unreadable row", err)
			continue
		}
		stats.RecordsParsed++

		tx, parseErr := tp.fromRecord(record, parseCtx)
		if parseErr != nil {
			parseCtx.Errors = append(parseCtx.Errors, parseErr)
			continue
		}

		if err := tx.Validate(); err != nil {
			parseCtx.addError("transaction", tx.ID, "validation failed", err)
			continue
		}

		transactions = append(transactions, tx)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber
	stats.Errors = parseCtx.Errors

	tp.log.WithFields(logger.Fields{
		"file_path":     filePath,
		"records_valid": stats.RecordsValid,
		"errors":        len(stats.Errors),
	}).Info("Transaction parsing complete")

	if stats.HasErrors() {
		tp.log.WithField("sample_errors", stats.SampleErrors(3)).Warn("Some rows were skipped")
	}

	return transactions, stats, nil
}

func (tp *TransactionParser) fromRecord(record []string, parseCtx *parseContext) (*models.Transaction, *ParseError) {
	id := tp.mapping.Value(record, parseCtx, "id")
	amount := tp.mapping.Value(record, parseCtx, "amount")
	direction := tp.mapping.Value(record, parseCtx, "direction")

	// Exports without an explicit direction column carry it in the sign
	if direction == "" {
		if strings.HasPrefix(amount, "-") {
			direction = "DEBIT"
		} else {
			direction = "CREDIT"
		}
	}

	tx, err := models.CreateTransactionFromCSV(
		id,
		amount,
		tp.mapping.Value(record, parseCtx, "currency"),
		tp.mapping.Value(record, parseCtx, "date"),
		tp.mapping.Value(record, parseCtx, "description"),
		tp.mapping.Value(record, parseCtx, "counterparty"),
		direction,
	)
	if err != nil {
		return nil, &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   "transaction",
			Value:   id,
			Message: "invalid transaction row",
			Err:     errors.InputError(errors.CodeInvalidFormat, id, err),
		}
	}

	return tx, nil
}
