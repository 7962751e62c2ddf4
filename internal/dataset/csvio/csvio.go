// Package csvio reads and writes the daily report CSV layout.
package csvio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/smallbiznis/forecast/internal/config"
	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CompanyColumn optionally scopes CSV rows to a company.
const CompanyColumn = "company_id"

// Read parses a CSV with a header row into raw rows. A UTF-8 or UTF-16 BOM is honoured.
func Read(r io.Reader) ([]datasetdomain.RawRow, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []datasetdomain.RawRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		row := make(datasetdomain.RawRow, len(header))
		for i, key := range header {
			if i < len(record) {
				row[key] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Write emits frame as CSV: report_date then the frame columns. Missing values are empty.
func Write(w io.Writer, frame *datasetdomain.Frame) error {
	writer := csv.NewWriter(w)
	columns := frame.Columns()
	if err := writer.Write(append([]string{datasetdomain.DateColumn}, columns...)); err != nil {
		return err
	}

	record := make([]string, len(columns)+1)
	for i, date := range frame.Dates {
		record[0] = date.Format(forecastdomain.DateLayout)
		for j, column := range columns {
			record[j+1] = formatValue(frame.Value(column, i))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile writes frame to path, creating parent directories.
func WriteFile(path string, frame *datasetdomain.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(file, frame); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func formatValue(value float64) string {
	if math.IsNaN(value) {
		return ""
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// Source serves history from a CSV file on disk.
type Source struct {
	path string
}

func NewSource(cfg config.Config) *Source {
	return &Source{path: cfg.Dataset.CSVPath}
}

// NewFileSource reads from an explicit path.
func NewFileSource(path string) *Source {
	return &Source{path: path}
}

func (s *Source) Name() string {
	return config.SourceCSV
}

// Fetch reads the file. When it carries a company_id column, rows are filtered by companyID.
func (s *Source) Fetch(ctx context.Context, companyID string) ([]datasetdomain.RawRow, error) {
	rows, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	if companyID == "" || len(rows) == 0 {
		return rows, nil
	}
	if _, scoped := rows[0][CompanyColumn]; !scoped {
		return rows, nil
	}

	filtered := rows[:0]
	for _, row := range rows {
		if value, _ := row[CompanyColumn].(string); strings.TrimSpace(value) == companyID {
			delete(row, CompanyColumn)
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

// Companies lists the distinct company_id values of a scoped file.
func (s *Source) Companies(ctx context.Context) ([]string, error) {
	rows, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if _, scoped := rows[0][CompanyColumn]; !scoped {
		return nil, datasetdomain.ErrCompanyListingUnsupported
	}

	seen := map[string]struct{}{}
	for _, row := range rows {
		if value, _ := row[CompanyColumn].(string); strings.TrimSpace(value) != "" {
			seen[strings.TrimSpace(value)] = struct{}{}
		}
	}
	companies := make([]string, 0, len(seen))
	for company := range seen {
		companies = append(companies, company)
	}
	sort.Strings(companies)
	return companies, nil
}

func (s *Source) readAll(ctx context.Context) ([]datasetdomain.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(s.path)
	if err != nil {
		return nil, &forecastdomain.UpstreamError{Source: config.SourceCSV, Err: err}
	}
	defer file.Close()

	rows, err := Read(file)
	if err != nil {
		return nil, &forecastdomain.UpstreamError{Source: config.SourceCSV, Err: err}
	}
	return rows, nil
}
