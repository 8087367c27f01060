package eventlog

import (
	"context"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/pmlens/internal/model"
	pmerrors "github.com/logflow/pmlens/pkg/errors"
)

// XLSXLoader reads Excel workbooks. The first row of the sheet is the header.
type XLSXLoader struct {
	schema Schema
	sheet  string
}

// NewXLSXLoader creates an XLSX loader. An empty sheet selects the first one.
func NewXLSXLoader(schema Schema, sheet string) *XLSXLoader {
	return &XLSXLoader{schema: schema, sheet: sheet}
}

// Load implements Loader.
func (l *XLSXLoader) Load(ctx context.Context, r io.Reader, source string) (*model.Table, error) {
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return nil, pmerrors.Wrap(err, pmerrors.CodeInvalidFormat, "open xlsx").WithContext("source", source)
	}
	defer xl.Close()

	sheet := l.sheet
	if sheet == "" {
		sheets := xl.GetSheetList()
		if len(sheets) == 0 {
			return nil, pmerrors.New(pmerrors.CodeInvalidFormat, "no sheets found in xlsx").WithContext("source", source)
		}
		sheet = sheets[0]
	}

	rows, err := xl.Rows(sheet)
	if err != nil {
		return nil, pmerrors.Wrap(err, pmerrors.CodeInvalidFormat, "read xlsx rows").WithContext("sheet", sheet)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, pmerrors.New(pmerrors.CodeInvalidFormat, "xlsx sheet is empty").WithContext("sheet", sheet)
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, pmerrors.Wrap(err, pmerrors.CodeInvalidFormat, "read xlsx header")
	}

	builder, err := newRowBuilder(l.schema, header, source)
	if err != nil {
		return nil, err
	}

	row := 0
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, pmerrors.ContextCanceled("load", err)
		}

		cols, err := rows.Columns()
		if err != nil {
			return nil, pmerrors.Wrap(err, pmerrors.CodeSourceRead, "read xlsx row").WithContext("row", row+1)
		}
		if isBlank(cols) {
			continue
		}

		row++
		if err := builder.add(cols, row); err != nil {
			return nil, err
		}
	}
	if err := rows.Error(); err != nil {
		return nil, pmerrors.Wrap(err, pmerrors.CodeSourceRead, "iterate xlsx rows")
	}

	return builder.finish(), nil
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if c != "" {
			return false
		}
	}
	return true
}
