package io

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/series"
)

// Read reads Parquet data and returns a DataFrame.
func (r *ParquetReader) Read() (*dataframe.DataFrame, error) {
	data, err := io.ReadAll(r.reader)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}

	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating parquet file reader: %w", err)
	}
	defer func() { _ = pqReader.Close() }()

	props := pqarrow.ArrowReadProperties{BatchSize: int64(r.options.BatchSize)}
	arrowReader, err := pqarrow.NewFileReader(pqReader, props, r.mem)
	if err != nil {
		return nil, fmt.Errorf("creating arrow file reader: %w", err)
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}
	defer table.Release()

	seriesList := make([]dataframe.ISeries, 0, table.NumCols())
	for i := 0; i < int(table.NumCols()); i++ {
		column := table.Column(i)
		s, err := r.columnToSeries(column)
		if err != nil {
			for _, done := range seriesList {
				done.Release()
			}
			return nil, fmt.Errorf("converting column %s: %w", column.Name(), err)
		}
		seriesList = append(seriesList, s)
	}

	return dataframe.New(seriesList...), nil
}

// columnToSeries flattens every chunk of a column into one series.
// 32-bit numerics are widened to their 64-bit counterparts.
func (r *ParquetReader) columnToSeries(column *arrow.Column) (dataframe.ISeries, error) {
	name := column.Name()
	chunks := column.Data().Chunks()

	//nolint:exhaustive // Only handling supported types
	switch column.DataType().ID() {
	case arrow.INT64:
		values, valid := flatten(chunks, func(a arrow.Array, i int) int64 { return a.(*array.Int64).Value(i) })
		return series.NewWithValidity(name, values, valid, r.mem)
	case arrow.INT32:
		values, valid := flatten(chunks, func(a arrow.Array, i int) int64 { return int64(a.(*array.Int32).Value(i)) })
		return series.NewWithValidity(name, values, valid, r.mem)
	case arrow.FLOAT64:
		values, valid := flatten(chunks, func(a arrow.Array, i int) float64 { return a.(*array.Float64).Value(i) })
		return series.NewWithValidity(name, values, valid, r.mem)
	case arrow.FLOAT32:
		values, valid := flatten(chunks, func(a arrow.Array, i int) float64 { return float64(a.(*array.Float32).Value(i)) })
		return series.NewWithValidity(name, values, valid, r.mem)
	case arrow.STRING:
		values, valid := flatten(chunks, func(a arrow.Array, i int) string { return a.(*array.String).Value(i) })
		return series.NewWithValidity(name, values, valid, r.mem)
	case arrow.BOOL:
		values, valid := flatten(chunks, func(a arrow.Array, i int) bool { return a.(*array.Boolean).Value(i) })
		return series.NewWithValidity(name, values, valid, r.mem)
	default:
		return nil, fmt.Errorf("unsupported Arrow type: %s", column.DataType())
	}
}

func flatten[T any](chunks []arrow.Array, value func(arrow.Array, int) T) ([]T, []bool) {
	var values []T
	var valid []bool
	for _, chunk := range chunks {
		for i := 0; i < chunk.Len(); i++ {
			if chunk.IsNull(i) {
				var zero T
				values = append(values, zero)
				valid = append(valid, false)
				continue
			}
			values = append(values, value(chunk, i))
			valid = append(valid, true)
		}
	}
	return values, valid
}

// Write writes the DataFrame to Parquet format.
func (w *ParquetWriter) Write(df *dataframe.DataFrame) error {
	record := w.toRecord(df)
	defer record.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compressionCodec(w.options.Compression)),
		parquet.WithBatchSize(int64(w.options.BatchSize)),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(memory.NewGoAllocator()))

	// The file writer closes its sink, so it writes into a buffer first.
	var buf bytes.Buffer
	writer, err := pqarrow.NewFileWriter(record.Schema(), &buf, props, arrowProps)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}
	if err := writer.Write(record); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing file writer: %w", err)
	}

	if _, err := w.writer.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing parquet bytes: %w", err)
	}
	return nil
}

func (w *ParquetWriter) toRecord(df *dataframe.DataFrame) arrow.Record {
	columns := df.Columns()
	fields := make([]arrow.Field, 0, len(columns))
	arrays := make([]arrow.Array, 0, len(columns))
	for _, name := range columns {
		col, _ := df.Column(name)
		arr := col.Array()
		fields = append(fields, arrow.Field{Name: name, Type: arr.DataType(), Nullable: true})
		arrays = append(arrays, arr)
	}

	record := array.NewRecord(arrow.NewSchema(fields, nil), arrays, int64(df.Len()))
	for _, arr := range arrays {
		arr.Release()
	}
	return record
}

func compressionCodec(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Codecs.Gzip
	case "lz4":
		return compress.Codecs.Lz4Raw
	case "zstd":
		return compress.Codecs.Zstd
	case "uncompressed":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}
