package eventlog

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/logflow/pmlens/internal/model"
)

// Loader reads an event log into memory.
type Loader interface {
	// Load reads every row from r. It fails fast when a required column is
	// missing and respects context cancellation between rows.
	Load(ctx context.Context, r io.Reader, source string) (*model.Table, error)
}

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXLSX
	FormatParquet
)

// ErrUnsupportedFormat is returned when the input format is not supported.
var ErrUnsupportedFormat = errors.New("eventlog: unsupported format")

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format name.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "csv", "tsv", "txt":
		return FormatCSV
	case "xlsx", "excel":
		return FormatXLSX
	case "parquet", "pq":
		return FormatParquet
	default:
		return FormatUnknown
	}
}

// DetectFormat infers the format from a file name or object key.
func DetectFormat(name string) Format {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	return ParseFormat(ext)
}

// Options controls loader behaviour.
type Options struct {
	// Delimiter is the CSV field delimiter. Zero means comma, or tab for .tsv.
	Delimiter byte

	// Sheet selects the XLSX sheet. Empty means the first sheet.
	Sheet string
}

// NewLoader creates a loader for the given format.
func NewLoader(format Format, schema Schema, opts Options) (Loader, error) {
	switch format {
	case FormatCSV:
		return NewCSVLoader(schema, opts.Delimiter), nil
	case FormatXLSX:
		return NewXLSXLoader(schema, opts.Sheet), nil
	case FormatParquet:
		return NewParquetLoader(schema), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}
