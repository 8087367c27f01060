package eventlog

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/logflow/pmlens/internal/model"
	pmerrors "github.com/logflow/pmlens/pkg/errors"
)

const csvBufferSize = 64 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVLoader reads delimited text event logs.
type CSVLoader struct {
	schema    Schema
	delimiter byte
}

// NewCSVLoader creates a CSV loader. A zero delimiter means comma.
func NewCSVLoader(schema Schema, delimiter byte) *CSVLoader {
	if delimiter == 0 {
		delimiter = ','
	}
	return &CSVLoader{schema: schema, delimiter: delimiter}
}

// Load implements Loader.
func (l *CSVLoader) Load(ctx context.Context, r io.Reader, source string) (*model.Table, error) {
	reader := bufio.NewReaderSize(r, csvBufferSize)
	scanner := NewScanner(l.delimiter)

	headerLine, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, pmerrors.Wrap(err, pmerrors.CodeSourceRead, "read header")
	}
	headerLine = bytes.TrimPrefix(headerLine, utf8BOM)
	header := scanner.ScanLine(trimLineEnding(headerLine))
	if len(header) == 0 {
		return nil, pmerrors.New(pmerrors.CodeInvalidFormat, "empty CSV input").WithContext("source", source)
	}

	builder, err := newRowBuilder(l.schema, header, source)
	if err != nil {
		return nil, err
	}

	row := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, pmerrors.ContextCanceled("load", err)
		}

		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, pmerrors.Wrap(readErr, pmerrors.CodeSourceRead, "read row").WithContext("row", row+1)
		}

		line = trimLineEnding(line)
		if len(bytes.TrimSpace(line)) > 0 {
			fields := scanner.ScanLine(line)
			// Quoted fields may span physical lines.
			for scanner.Unterminated() && readErr != io.EOF {
				var next []byte
				next, readErr = reader.ReadBytes('\n')
				if readErr != nil && readErr != io.EOF {
					return nil, pmerrors.Wrap(readErr, pmerrors.CodeSourceRead, "read row").WithContext("row", row+1)
				}
				if len(next) == 0 {
					break
				}
				line = append(append(line, '\n'), trimLineEnding(next)...)
				fields = scanner.ScanLine(line)
			}

			row++
			if err := builder.add(fields, row); err != nil {
				return nil, err
			}
		}

		if readErr == io.EOF {
			break
		}
	}

	return builder.finish(), nil
}

// trimLineEnding removes trailing \n and \r characters.
func trimLineEnding(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
