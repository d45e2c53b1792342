package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Row is a flat record as exchanged with the catalog. Values are nil, string,
// bool, float64, int or []string; nested references are already flattened.
type Row map[string]any

// Clone returns a shallow copy with list values duplicated.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}

// Keys returns the column names in sorted order.
func (r Row) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the textual value of column, or "" when absent or nil.
func (r Row) String(column string) string {
	return FormatValue(r[column])
}

// Ptr returns the textual value of column as an optional string.
func (r Row) Ptr(column string) *string {
	s := strings.TrimSpace(r.String(column))
	if s == "" {
		return nil
	}
	return &s
}

// Bool interprets the column as a boolean; nil when absent or unparsable.
func (r Row) Bool(column string) *bool {
	switch v := r[column].(type) {
	case bool:
		return &v
	case nil:
		return nil
	default:
		b, err := strconv.ParseBool(strings.TrimSpace(FormatValue(v)))
		if err != nil {
			return nil
		}
		return &b
	}
}

// Float interprets the column as a number; nil when absent or unparsable.
func (r Row) Float(column string) *float64 {
	switch v := r[column].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case nil:
		return nil
	default:
		f, err := strconv.ParseFloat(strings.TrimSpace(FormatValue(v)), 64)
		if err != nil {
			return nil
		}
		return &f
	}
}

// List interprets the column as a comma separated set.
func (r Row) List(column string) []string {
	switch v := r[column].(type) {
	case []string:
		return SortedSet(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, FormatValue(item))
		}
		return SortedSet(out)
	default:
		return SplitList(FormatValue(v))
	}
}

// FormatValue renders a row value the way it is written to CSV.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []string:
		return strings.Join(val, ",")
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case *bool:
		if val == nil {
			return ""
		}
		return strconv.FormatBool(*val)
	case *float64:
		if val == nil {
			return ""
		}
		return strconv.FormatFloat(*val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// SplitList splits a comma separated string into a sorted, de-duplicated set.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return SortedSet(strings.Split(s, ","))
}

// SortedSet trims, de-duplicates and sorts values, dropping empty entries.
func SortedSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// Union merges sets, keeping the result sorted.
func Union(sets ...[]string) []string {
	var all []string
	for _, s := range sets {
		all = append(all, s...)
	}
	return SortedSet(all)
}

// Contains reports whether value is in the set.
func Contains(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

// Equal reports whether two rows hold the same values column by column,
// comparing by their CSV rendering so that list order and number types do not matter.
func Equal(a, b Row, ignore ...string) bool {
	skip := make(map[string]struct{}, len(ignore))
	for _, col := range ignore {
		skip[col] = struct{}{}
	}
	cols := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		cols[k] = struct{}{}
	}
	for k := range b {
		cols[k] = struct{}{}
	}
	for col := range cols {
		if _, ok := skip[col]; ok {
			continue
		}
		if normalizedValue(a[col]) != normalizedValue(b[col]) {
			return false
		}
	}
	return true
}

func normalizedValue(v any) string {
	switch val := v.(type) {
	case []string:
		return strings.Join(SortedSet(val), ",")
	case string:
		if strings.Contains(val, ",") {
			return strings.Join(SplitList(val), ",")
		}
		return strings.TrimSpace(val)
	default:
		return FormatValue(v)
	}
}

func str(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolean(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

func number(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func list(values []string) any {
	if len(values) == 0 {
		return nil
	}
	return SortedSet(values)
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// Deref returns the pointed-to string or "".
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
