// Package io reads complaint datasets into DataFrames and writes prediction
// tables back out.
//
// CSV, XLSX and Parquet are supported in both directions. Text cells are
// type-inferred per column; tokens listed in NullValues become nulls rather
// than zero values so that imputation sees them as missing.
//
// Memory management: All I/O operations integrate with Apache Arrow's
// memory management system and require proper cleanup with defer patterns.
package io

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/dataframe"
)

const (
	// DefaultBatchSize is the default batch size for I/O operations
	DefaultBatchSize = 1000
)

// DefaultNullValues are the cell contents treated as missing
var DefaultNullValues = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None"}

// DataReader defines the interface for reading data from various sources
type DataReader interface {
	// Read reads data from the source and returns a DataFrame
	Read() (*dataframe.DataFrame, error)
}

// DataWriter defines the interface for writing data to various destinations
type DataWriter interface {
	// Write writes the DataFrame to the destination
	Write(df *dataframe.DataFrame) error
}

// CSVOptions contains configuration options for CSV operations
type CSVOptions struct {
	// Delimiter is the field delimiter (default: comma)
	Delimiter rune
	// Comment is the comment character (default: 0 = disabled)
	Comment rune
	// Header indicates whether the first row contains headers
	Header bool
	// SkipInitialSpace indicates whether to skip initial whitespace
	SkipInitialSpace bool
	// NullValues lists cell contents read as null
	NullValues []string
}

// DefaultCSVOptions returns default CSV options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:        ',',
		Comment:          0,
		Header:           true,
		SkipInitialSpace: false,
		NullValues:       DefaultNullValues,
	}
}

// CSVReader reads CSV data and converts it to DataFrames
type CSVReader struct {
	reader  io.Reader
	options CSVOptions
	mem     memory.Allocator
}

// NewCSVReader creates a new CSV reader with the specified options
func NewCSVReader(reader io.Reader, options CSVOptions, mem memory.Allocator) *CSVReader {
	return &CSVReader{
		reader:  reader,
		options: options,
		mem:     mem,
	}
}

// CSVWriter writes DataFrames to CSV format
type CSVWriter struct {
	writer  io.Writer
	options CSVOptions
}

// NewCSVWriter creates a new CSV writer with the specified options
func NewCSVWriter(writer io.Writer, options CSVOptions) *CSVWriter {
	return &CSVWriter{
		writer:  writer,
		options: options,
	}
}

// XLSXOptions contains configuration options for spreadsheet operations
type XLSXOptions struct {
	// Sheet names the worksheet; empty reads the first sheet and writes "Sheet1"
	Sheet string
	// NullValues lists cell contents read as null
	NullValues []string
}

// DefaultXLSXOptions returns default spreadsheet options
func DefaultXLSXOptions() XLSXOptions {
	return XLSXOptions{
		NullValues: DefaultNullValues,
	}
}

// XLSXReader reads the first (or named) worksheet of a workbook
type XLSXReader struct {
	reader  io.Reader
	options XLSXOptions
	mem     memory.Allocator
}

// NewXLSXReader creates a new spreadsheet reader with the specified options
func NewXLSXReader(reader io.Reader, options XLSXOptions, mem memory.Allocator) *XLSXReader {
	return &XLSXReader{
		reader:  reader,
		options: options,
		mem:     mem,
	}
}

// XLSXWriter writes DataFrames to a single-sheet workbook
type XLSXWriter struct {
	writer  io.Writer
	options XLSXOptions
}

// NewXLSXWriter creates a new spreadsheet writer with the specified options
func NewXLSXWriter(writer io.Writer, options XLSXOptions) *XLSXWriter {
	return &XLSXWriter{
		writer:  writer,
		options: options,
	}
}

// ParquetOptions contains configuration options for Parquet operations
type ParquetOptions struct {
	// Compression type for Parquet files
	Compression string
	// BatchSize for reading/writing operations
	BatchSize int
}

// DefaultParquetOptions returns default Parquet options
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{
		Compression: "snappy",
		BatchSize:   DefaultBatchSize,
	}
}

// ParquetReader reads Parquet data and converts it to DataFrames
type ParquetReader struct {
	reader  io.Reader
	options ParquetOptions
	mem     memory.Allocator
}

// NewParquetReader creates a new Parquet reader with the specified options
func NewParquetReader(reader io.Reader, options ParquetOptions, mem memory.Allocator) *ParquetReader {
	return &ParquetReader{
		reader:  reader,
		options: options,
		mem:     mem,
	}
}

// ParquetWriter writes DataFrames to Parquet format
type ParquetWriter struct {
	writer  io.Writer
	options ParquetOptions
}

// NewParquetWriter creates a new Parquet writer with the specified options
func NewParquetWriter(writer io.Writer, options ParquetOptions) *ParquetWriter {
	return &ParquetWriter{
		writer:  writer,
		options: options,
	}
}
