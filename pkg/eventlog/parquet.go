package eventlog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/pmlens/internal/model"
	pmerrors "github.com/logflow/pmlens/pkg/errors"
)

const parquetBatchSize = 8192

// ParquetLoader reads Parquet event logs through Arrow.
type ParquetLoader struct {
	schema Schema
	alloc  memory.Allocator
}

// NewParquetLoader creates a Parquet loader.
func NewParquetLoader(schema Schema) *ParquetLoader {
	return &ParquetLoader{schema: schema, alloc: memory.DefaultAllocator}
}

// Load implements Loader. Parquet needs random access, so non-seekable
// readers are buffered in memory first.
func (l *ParquetLoader) Load(ctx context.Context, r io.Reader, source string) (*model.Table, error) {
	ra, ok := r.(parquetSource)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, pmerrors.Wrap(err, pmerrors.CodeSourceRead, "read parquet input")
		}
		ra = bytes.NewReader(data)
	}

	pqReader, err := file.NewParquetReader(ra)
	if err != nil {
		return nil, pmerrors.Wrap(err, pmerrors.CodeInvalidFormat, "open parquet").WithContext("source", source)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{
		BatchSize: parquetBatchSize,
	}, l.alloc)
	if err != nil {
		return nil, pmerrors.Wrap(err, pmerrors.CodeInvalidFormat, "create arrow reader")
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, pmerrors.Wrap(err, pmerrors.CodeInvalidFormat, "read parquet schema")
	}
	header := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		header[i] = f.Name
	}

	builder, err := newRowBuilder(l.schema, header, source)
	if err != nil {
		return nil, err
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, pmerrors.Wrap(err, pmerrors.CodeSourceRead, "read parquet table")
	}
	defer table.Release()

	tr := array.NewTableReader(table, parquetBatchSize)
	defer tr.Release()

	cells := make([]string, len(header))
	row := 0
	for tr.Next() {
		if err := ctx.Err(); err != nil {
			return nil, pmerrors.ContextCanceled("load", err)
		}

		rec := tr.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			for c := range cells {
				cells[c] = cellString(rec.Column(c), i)
			}
			row++
			if err := builder.add(cells, row); err != nil {
				return nil, err
			}
		}
	}

	return builder.finish(), nil
}

// parquetSource is the random access file.NewParquetReader needs.
type parquetSource interface {
	io.ReaderAt
	io.Seeker
	io.Reader
}

// cellString renders one Arrow value the way a text export would, so every
// format shares the same row conversion. Nulls render as empty.
func cellString(arr arrow.Array, i int) string {
	if arr.IsNull(i) {
		return ""
	}

	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return string(a.Value(i))
	case *array.Float64:
		return strconv.FormatFloat(a.Value(i), 'g', -1, 64)
	case *array.Float32:
		return strconv.FormatFloat(float64(a.Value(i)), 'g', -1, 32)
	case *array.Int64:
		return strconv.FormatInt(a.Value(i), 10)
	case *array.Int32:
		return strconv.FormatInt(int64(a.Value(i)), 10)
	case *array.Int16:
		return strconv.FormatInt(int64(a.Value(i)), 10)
	case *array.Int8:
		return strconv.FormatInt(int64(a.Value(i)), 10)
	case *array.Boolean:
		return strconv.FormatBool(a.Value(i))
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC().Format(time.RFC3339Nano)
	case *array.Date32:
		return a.Value(i).ToTime().Format("2006-01-02")
	case *array.Date64:
		return a.Value(i).ToTime().Format("2006-01-02")
	case *array.Dictionary:
		return cellString(a.Dictionary(), a.GetValueIndex(i))
	default:
		return fmt.Sprint(arr.GetOneForMarshal(i))
	}
}
