package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"goamcc/internal"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath  string
	fileType  string // "xlsx" or "csv"
	delimiter rune
	header    bool
	logger    *internal.Logger
}

// ReaderOption configures a DataReader
type ReaderOption func(*DataReader)

// WithDelimiter sets the field separator for delimited text files
func WithDelimiter(d string) ReaderOption {
	return func(r *DataReader) {
		if c, size := utf8.DecodeRuneInString(d); size > 0 && size == len(d) {
			r.delimiter = c
		}
	}
}

// WithoutHeader treats the first row as data
func WithoutHeader() ReaderOption {
	return func(r *DataReader) { r.header = false }
}

// WithLogger sets the logger
func WithLogger(l *internal.Logger) ReaderOption {
	return func(r *DataReader) { r.logger = l }
}

// NewDataReader creates a new data reader that handles both Excel and
// delimited text files. Anything other than .xlsx is read as delimited text.
func NewDataReader(filePath string, opts ...ReaderOption) *DataReader {
	fileType := "csv"
	if strings.EqualFold(filepath.Ext(filePath), ".xlsx") {
		fileType = "xlsx"
	}
	r := &DataReader{
		filePath:  filePath,
		fileType:  fileType,
		delimiter: ',',
		header:    true,
		logger:    internal.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadTable reads the file into a Table
func (r *DataReader) ReadTable() (*Table, error) {
	r.logger.Debug("[DataReader] Starting to read %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var (
		rows [][]string
		err  error
	)
	readStart := time.Now()
	switch r.fileType {
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		rows, err = r.readCSVRows()
	}
	if err != nil {
		return nil, err
	}
	r.logger.Debug("[DataReader] %s file read in %.2fms (%d rows)",
		strings.ToUpper(r.fileType), float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))

	return r.processRows(rows)
}

// readExcelRows reads the first sheet of the workbook
func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("Excel file has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheets[0], err)
	}
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = r.delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// processRows trims cells, drops blank lines and splits off the header
func (r *DataReader) processRows(rows [][]string) (*Table, error) {
	table := &Table{}
	for _, row := range rows {
		cells := make([]string, len(row))
		blank := true
		for j, cell := range row {
			cells[j] = strings.TrimSpace(cell)
			if cells[j] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		if r.header && table.Headers == nil {
			table.Headers = cells
			continue
		}
		table.Rows = append(table.Rows, cells)
	}

	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%s file must have at least one data row", strings.ToUpper(r.fileType))
	}

	r.logger.Info("[DataReader] %s file processed (%d columns, %d rows)",
		strings.ToUpper(r.fileType), table.Width(), len(table.Rows))
	return table, nil
}
