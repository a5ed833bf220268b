// Package parsers loads bank transactions and invoices from CSV and JSON
// files. Real exports disagree on column names, date formats and amount
// formatting; the parsers normalize all of that before records reach the
// matching engine. Bad rows are collected as errors and skipped rather
// than failing the whole file.
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"payment-reconciliation-service/pkg/errors"
	"payment-reconciliation-service/pkg/logger"
)

// ParseError represents an error that occurred on one CSV row
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d (%s='%s'): %s: %v",
			e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d (%s='%s'): %s",
		e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds low-level CSV reading options
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
	}
}

// baseParser provides shared CSV mechanics for the concrete parsers
type baseParser struct {
	config *ParseConfig
	log    logger.Logger
}

func newBaseParser(config *ParseConfig, component string) *baseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	return &baseParser{
		config: config,
		log:    logger.WithComponent(component),
	}
}

// parseContext tracks position and errors while reading one file
type parseContext struct {
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	Errors     []*ParseError
	ctx        context.Context
}

func newParseContext(ctx context.Context) *parseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &parseContext{
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

func (pc *parseContext) isCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

func (pc *parseContext) addError(field, value, message string, err error) {
	pc.Errors = append(pc.Errors, &ParseError{
		Line:    pc.LineNumber,
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	})
}

// columnIndex resolves a header name case-insensitively, returning -1 when
// absent
func (pc *parseContext) columnIndex(name string) int {
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}
	lower := strings.ToLower(name)
	for header, index := range pc.HeaderMap {
		if strings.ToLower(header) == lower {
			return index
		}
	}
	return -1
}

// openFile opens a CSV file and returns a configured reader
func (bp *baseParser) openFile(filePath string) (*os.File, *csv.Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		bp.log.WithError(err).WithField("file_path", filePath).Error("Failed to open file")
		if os.IsNotExist(err) {
			return nil, nil, errors.InputError(errors.CodeFileNotFound, filePath, err)
		}
		return nil, nil, errors.InputError(errors.CodeInvalidFormat, filePath, err)
	}

	reader := csv.NewReader(file)
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1

	return file, reader, nil
}

// readHeaders consumes the header row and verifies the required columns
// resolve through the given mapping
func (bp *baseParser) readHeaders(reader *csv.Reader, parseCtx *parseContext, mapping *ColumnMapping, required []string) error {
	if !bp.config.HasHeader {
		return errors.InputError(errors.CodeMissingColumn, "headerless files are not supported", nil)
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.InputError(errors.CodeMissingField, "file is empty", nil)
		}
		return errors.InputError(errors.CodeInvalidFormat, "header row", err)
	}

	parseCtx.LineNumber++
	parseCtx.Headers = make([]string, len(headers))
	for i, header := range headers {
		parseCtx.Headers[i] = strings.TrimSpace(header)
	}
	parseCtx.HeaderMap = make(map[string]int, len(parseCtx.Headers))
	for i, header := range parseCtx.Headers {
		parseCtx.HeaderMap[header] = i
	}

	var missing []string
	for _, field := range required {
		if mapping.Resolve(parseCtx, field) == -1 {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		bp.log.WithFields(logger.Fields{
			"missing_fields":    missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required columns are missing")
		return errors.InputError(errors.CodeMissingColumn, strings.Join(missing, ", "), nil)
	}

	return nil
}

// readRecord reads the next non-empty CSV row
func (bp *baseParser) readRecord(reader *csv.Reader, parseCtx *parseContext) ([]string, error) {
	for {
		record, err := reader.Read()
		if err != nil {
			return nil, err
		}
		parseCtx.LineNumber++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}
		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// ColumnMapping maps logical field names to the header aliases different
// exports use for them. The first alias present in the file wins.
type ColumnMapping struct {
	Aliases map[string][]string
}

// Resolve returns the column index for a logical field, or -1
func (cm *ColumnMapping) Resolve(parseCtx *parseContext, field string) int {
	for _, alias := range cm.Aliases[field] {
		if index := parseCtx.columnIndex(alias); index != -1 {
			return index
		}
	}
	return -1
}

// Value returns the trimmed cell for a logical field, empty when the
// column is absent or the row is short
func (cm *ColumnMapping) Value(record []string, parseCtx *parseContext, field string) string {
	index := cm.Resolve(parseCtx, field)
	if index == -1 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ParseStats summarizes one parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	Errors        []*ParseError
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return len(ps.Errors) > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, len(ps.Errors))
}

// SampleErrors returns up to maxSamples error messages for logging
func (ps *ParseStats) SampleErrors(maxSamples int) []string {
	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	var samples []string
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}
