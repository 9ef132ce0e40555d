package io

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/series"
)

const (
	// Boolean string constants
	trueStr  = "true"
	falseStr = "false"
	boolType = "bool"
)

// buildFrame transposes text rows into typed columns. Short rows are padded
// with nulls; cells matching nullValues become nulls.
func buildFrame(headers []string, rows [][]string, nullValues []string, mem memory.Allocator) (*dataframe.DataFrame, error) {
	nulls := make(map[string]bool, len(nullValues))
	for _, v := range nullValues {
		nulls[v] = true
	}

	seriesList := make([]dataframe.ISeries, 0, len(headers))
	for i, header := range headers {
		data := make([]string, len(rows))
		valid := make([]bool, len(rows))
		for j, row := range rows {
			if i >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[i])
			if nulls[cell] {
				continue
			}
			data[j] = cell
			valid[j] = true
		}

		s, err := createSeriesFromStrings(strings.TrimSpace(header), data, valid, mem)
		if err != nil {
			for _, done := range seriesList {
				done.Release()
			}
			return nil, fmt.Errorf("creating series for column %s: %w", header, err)
		}
		seriesList = append(seriesList, s)
	}

	return dataframe.New(seriesList...), nil
}

// createSeriesFromStrings creates a series from string data, inferring the appropriate type
func createSeriesFromStrings(name string, data []string, valid []bool, mem memory.Allocator) (dataframe.ISeries, error) {
	switch inferDataType(data, valid) {
	case boolType:
		values := make([]bool, len(data))
		for i, value := range data {
			values[i] = valid[i] && strings.EqualFold(value, trueStr)
		}
		return series.NewWithValidity(name, values, valid, mem)
	case "int":
		values := make([]int64, len(data))
		for i, value := range data {
			if valid[i] {
				values[i], _ = strconv.ParseInt(value, 10, 64)
			}
		}
		return series.NewWithValidity(name, values, valid, mem)
	case "float":
		values := make([]float64, len(data))
		for i, value := range data {
			if valid[i] {
				values[i], _ = strconv.ParseFloat(value, 64)
			}
		}
		return series.NewWithValidity(name, values, valid, mem)
	default:
		return series.NewWithValidity(name, data, valid, mem)
	}
}

// inferDataType determines the most appropriate data type for the given string data
func inferDataType(data []string, valid []bool) string {
	canBeInt := true
	canBeFloat := true
	canBeBool := true
	hasValue := false

	for i, value := range data {
		if !valid[i] {
			continue
		}
		hasValue = true

		if canBeBool {
			lower := strings.ToLower(value)
			if lower != trueStr && lower != falseStr {
				canBeBool = false
			}
		}
		if canBeInt {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				canBeInt = false
			}
		}
		if canBeFloat {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				canBeFloat = false
			}
		}
	}

	switch {
	case !hasValue:
		return "string"
	case canBeBool:
		return boolType
	case canBeInt:
		return "int"
	case canBeFloat:
		return "float"
	default:
		return "string"
	}
}

// cellString renders a cell for text output; nulls render empty.
func cellString(column dataframe.ISeries, index int) string {
	if column.IsNull(index) {
		return ""
	}
	return column.GetAsString(index)
}
