package io

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/errors"
)

// Format identifies a tabular file format
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	default:
		return "", errors.NewInvalidInputError("io.FormatFromPath", fmt.Sprintf("unsupported file extension for %s", path))
	}
}

// FileOptions selects per-format options when reading or writing by path
type FileOptions struct {
	CSV     CSVOptions
	XLSX    XLSXOptions
	Parquet ParquetOptions
}

// DefaultFileOptions returns the default options for every format
func DefaultFileOptions() FileOptions {
	return FileOptions{
		CSV:     DefaultCSVOptions(),
		XLSX:    DefaultXLSXOptions(),
		Parquet: DefaultParquetOptions(),
	}
}

// ReadFile reads the file at path with the reader matching its extension.
// A .tsv file is read tab-delimited.
func ReadFile(path string, opts FileOptions, mem memory.Allocator) (*dataframe.DataFrame, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var reader DataReader
	switch format {
	case FormatXLSX:
		reader = NewXLSXReader(f, opts.XLSX, mem)
	case FormatParquet:
		reader = NewParquetReader(f, opts.Parquet, mem)
	default:
		csvOpts := opts.CSV
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			csvOpts.Delimiter = '\t'
		}
		reader = NewCSVReader(f, csvOpts, mem)
	}

	df, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return df, nil
}

// WriteFile writes df to path with the writer matching its extension,
// creating parent directories as needed.
func WriteFile(path string, df *dataframe.DataFrame, opts FileOptions) (err error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	var writer DataWriter
	switch format {
	case FormatXLSX:
		writer = NewXLSXWriter(f, opts.XLSX)
	case FormatParquet:
		writer = NewParquetWriter(f, opts.Parquet)
	default:
		csvOpts := opts.CSV
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			csvOpts.Delimiter = '\t'
		}
		writer = NewCSVWriter(f, csvOpts)
	}

	if err := writer.Write(df); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
