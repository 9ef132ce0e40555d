// Package schema maps the header names found in complaint spreadsheets onto
// one canonical set of columns and decodes the escalation target.
package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/series"
)

// Canonical column names
const (
	AccountType     = "account_type"
	Channel         = "channel"
	ComplaintReason = "complaint_reason"
	LineOfBusiness  = "line_of_business"

	ComplaintLength   = "complaint_length"
	PriorComplaints   = "prior_complaints"
	ResolutionTime    = "resolution_time"
	SatisfactionScore = "satisfaction_score"
	EscalationHistory = "escalation_history"
	CustomerAge       = "customer_age"

	ComplaintDate = "complaint_date"
	Target        = "escalated"
	ComplaintID   = "complaint_id"
)

// DefaultCategorical lists the categorical inputs in canonical order
var DefaultCategorical = []string{AccountType, Channel, ComplaintReason, LineOfBusiness}

// DefaultNumeric lists the numeric inputs in canonical order
var DefaultNumeric = []string{ComplaintLength, PriorComplaints, ResolutionTime, SatisfactionScore, EscalationHistory, CustomerAge}

var defaultAliases = map[string]string{
	"accounttype":             AccountType,
	"acct_type":               AccountType,
	"account":                 AccountType,
	"customer_type":           AccountType,
	"contact_channel":         Channel,
	"complaint_channel":       Channel,
	"channel_type":            Channel,
	"reason":                  ComplaintReason,
	"complaint_category":      ComplaintReason,
	"complaint_type":          ComplaintReason,
	"category":                ComplaintReason,
	"lob":                     LineOfBusiness,
	"business_line":           LineOfBusiness,
	"lineofbusiness":          LineOfBusiness,
	"length":                  ComplaintLength,
	"complaint_text_length":   ComplaintLength,
	"complaintlength":         ComplaintLength,
	"prior_complaint_count":   PriorComplaints,
	"previous_complaints":     PriorComplaints,
	"num_prior_complaints":    PriorComplaints,
	"resolution_days":         ResolutionTime,
	"resolution_time_days":    ResolutionTime,
	"time_to_resolve":         ResolutionTime,
	"csat":                    SatisfactionScore,
	"satisfaction":            SatisfactionScore,
	"customer_satisfaction":   SatisfactionScore,
	"prior_escalations":       EscalationHistory,
	"escalation_count":        EscalationHistory,
	"previous_escalations":    EscalationHistory,
	"age":                     CustomerAge,
	"date":                    ComplaintDate,
	"complaint_received_date": ComplaintDate,
	"received_date":           ComplaintDate,
	"created_at":              ComplaintDate,
	"escalated?":              Target,
	"is_escalated":            Target,
	"escalation":              Target,
	"escalation_flag":         Target,
	"target":                  Target,
	"id":                      ComplaintID,
	"complaintid":             ComplaintID,
	"ticket_id":               ComplaintID,
	"case_id":                 ComplaintID,
}

var (
	separators  = regexp.MustCompile(`[\s\-./]+`)
	underscores = regexp.MustCompile(`_+`)
	camelCase   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// NormalizeHeader lower-cases a header, splits camelCase words, maps spaces,
// hyphens, dots and slashes to underscores and collapses repeats.
func NormalizeHeader(header string) string {
	h := strings.TrimSpace(header)
	h = camelCase.ReplaceAllString(h, "${1}_${2}")
	h = strings.ToLower(h)
	h = separators.ReplaceAllString(h, "_")
	h = underscores.ReplaceAllString(h, "_")
	return strings.Trim(h, "_")
}

// Schema describes which canonical columns a run uses
type Schema struct {
	Categorical []string          `msgpack:"categorical"`
	Numeric     []string          `msgpack:"numeric"`
	Aliases     map[string]string `msgpack:"aliases"`
}

// Default returns the canonical complaint schema
func Default() Schema {
	return Schema{
		Categorical: append([]string{}, DefaultCategorical...),
		Numeric:     append([]string{}, DefaultNumeric...),
	}
}

// Required returns the feature columns a source must provide.
func (s Schema) Required() []string {
	out := make([]string, 0, len(s.Categorical)+len(s.Numeric))
	out = append(out, s.Categorical...)
	return append(out, s.Numeric...)
}

func (s Schema) lookup(header string) (string, bool) {
	key := NormalizeHeader(header)
	known := map[string]bool{ComplaintDate: true, Target: true, ComplaintID: true}
	for _, c := range s.Required() {
		known[c] = true
	}
	if known[key] {
		return key, true
	}
	for alias, canonical := range s.Aliases {
		if NormalizeHeader(alias) == key {
			return canonical, true
		}
	}
	if canonical, ok := defaultAliases[key]; ok {
		return canonical, true
	}
	if canonical, ok := defaultAliases[strings.ReplaceAll(key, "_", "")]; ok {
		return canonical, true
	}
	return "", false
}

// Mapping resolves source headers to canonical names. Headers that match no
// known column are left out. requireTarget also demands the target column.
func (s Schema) Mapping(headers []string, requireTarget bool) (map[string]string, error) {
	mapping := make(map[string]string)
	claimed := make(map[string]string)
	for _, header := range headers {
		canonical, ok := s.lookup(header)
		if !ok {
			continue
		}
		if prev, dup := claimed[canonical]; dup {
			return nil, errors.NewSchemaError(canonical,
				fmt.Sprintf("headers %q and %q both resolve to this column", prev, header))
		}
		claimed[canonical] = header
		mapping[header] = canonical
	}

	required := s.Required()
	if requireTarget {
		required = append(required, Target)
	}
	var missing []string
	for _, c := range required {
		if _, ok := claimed[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.NewSchemaError(missing[0],
			fmt.Sprintf("required column not found (missing: %s)", strings.Join(missing, ", ")))
	}
	return mapping, nil
}

// Resolve renames df's columns to canonical names and drops everything the
// schema does not know about. The input frame is left untouched.
func (s Schema) Resolve(df *dataframe.DataFrame, requireTarget bool) (*dataframe.DataFrame, error) {
	mapping, err := s.Mapping(df.Columns(), requireTarget)
	if err != nil {
		return nil, err
	}

	keep := make([]string, 0, len(mapping))
	for _, header := range df.Columns() {
		if _, ok := mapping[header]; ok {
			keep = append(keep, header)
		}
	}
	selected := df.Select(keep...)
	defer selected.Release()
	return selected.Rename(mapping)
}

// ParseTarget maps an escalation label onto 0 or 1.
func ParseTarget(raw string) (int, bool) {
	switch strings.ToLower(strings.Join(strings.Fields(raw), " ")) {
	case "yes", "y", "true", "1", "1.0", "escalated":
		return 1, true
	case "no", "n", "false", "0", "0.0", "not escalated", "not_escalated":
		return 0, true
	default:
		return 0, false
	}
}

// Labels decodes the target column of a resolved frame. An empty or
// unrecognised label fails with its 1-based row.
func Labels(df *dataframe.DataFrame) ([]int, error) {
	values, valid, err := df.Strings(Target)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(values))
	for i, raw := range values {
		if !valid[i] {
			return nil, errors.NewRowError("schema.Labels", Target, i+1, "target is missing")
		}
		label, ok := ParseTarget(raw)
		if !ok {
			return nil, errors.NewRowError("schema.Labels", Target, i+1, fmt.Sprintf("unrecognised target %q", raw))
		}
		labels[i] = label
	}
	return labels, nil
}

// IDs returns complaint identifiers, falling back to 1-based row numbers
// when the frame has no id column or a row's id is missing.
func IDs(df *dataframe.DataFrame) ([]string, error) {
	ids := make([]string, df.Len())
	var values []string
	var valid []bool
	if df.HasColumn(ComplaintID) {
		var err error
		values, valid, err = df.Strings(ComplaintID)
		if err != nil {
			return nil, err
		}
	}
	for i := range ids {
		if valid != nil && valid[i] {
			ids[i] = values[i]
			continue
		}
		ids[i] = strconv.Itoa(i + 1)
	}
	return ids, nil
}

// IDSeries wraps IDs as a string series named complaint_id.
func IDSeries(df *dataframe.DataFrame, mem memory.Allocator) (*series.Series[string], error) {
	ids, err := IDs(df)
	if err != nil {
		return nil, err
	}
	return series.NewSafe(ComplaintID, ids, mem)
}
