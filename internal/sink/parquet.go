package sink

import (
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/osm-gazetteer/internal/record"
)

// ParquetSchema is the column layout of parquet output
var ParquetSchema = arrow.NewSchema([]arrow.Field{
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "alt_name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "operator", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "osm_id", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "location", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: false},
	{Name: "latitude", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "longitude", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "admin_level", Type: arrow.PrimitiveTypes.Uint8, Nullable: false},
}, nil)

// Parquet writes records to a zstd-compressed Parquet file in row groups
// of batchSize records
type Parquet struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
}

// NewParquet creates the output file
func NewParquet(path string, batchSize int) (*Parquet, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(ParquetSchema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Parquet{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, ParquetSchema),
		batchSize: batchSize,
	}, nil
}

// Write appends one record
func (w *Parquet) Write(r *record.Record) error {
	w.builder.Field(0).(*array.StringBuilder).Append(r.Name)
	appendOptional(w.builder.Field(1).(*array.StringBuilder), r.AltName)
	appendOptional(w.builder.Field(2).(*array.StringBuilder), r.Operator)
	w.builder.Field(3).(*array.StringBuilder).Append(r.OSMID.String())

	lb := w.builder.Field(4).(*array.ListBuilder)
	lb.Append(true)
	vb := lb.ValueBuilder().(*array.StringBuilder)
	for _, name := range r.Location {
		vb.Append(name)
	}

	w.builder.Field(5).(*array.Float64Builder).Append(r.Latitude)
	w.builder.Field(6).(*array.Float64Builder).Append(r.Longitude)
	w.builder.Field(7).(*array.Uint8Builder).Append(r.AdminLevel)

	w.count++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func appendOptional(b *array.StringBuilder, v string) {
	if v == "" {
		b.AppendNull()
		return
	}
	b.Append(v)
}

func (w *Parquet) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes the last batch and closes the file
func (w *Parquet) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
