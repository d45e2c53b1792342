package core

import (
	"sort"
	"strings"

	"rd3/pkg/domain"
)

// Filter restricts a Fetch. Query renders the catalog query language; Match
// evaluates the same predicate locally.
type Filter interface {
	Query() string
	Match(row domain.Row) bool
}

// Eq matches rows whose attr equals value. For list columns the value must be a member.
func Eq(attr string, value any) Filter { return cmp{attr: attr, op: "==", values: []string{domain.FormatValue(value)}} }

// NotEq matches rows whose attr differs from value (absent values differ).
func NotEq(attr string, value any) Filter {
	return cmp{attr: attr, op: "!=", values: []string{domain.FormatValue(value)}}
}

// In matches rows whose attr is one of values.
func In(attr string, values []string) Filter {
	cp := append([]string(nil), values...)
	sort.Strings(cp)
	return cmp{attr: attr, op: "=in=", values: cp}
}

// And matches rows satisfying every filter. Nil filters are skipped.
func And(filters ...Filter) Filter {
	var kept []Filter
	for _, f := range filters {
		if f != nil {
			kept = append(kept, f)
		}
	}
	return and(kept)
}

type cmp struct {
	attr   string
	op     string
	values []string
}

func (c cmp) Query() string {
	quoted := make([]string, len(c.values))
	for i, v := range c.values {
		quoted[i] = quote(v)
	}
	if c.op == "=in=" {
		return c.attr + "=in=(" + strings.Join(quoted, ",") + ")"
	}
	return c.attr + c.op + quoted[0]
}

func (c cmp) Match(row domain.Row) bool {
	current := cellValues(row[c.attr])
	hit := false
	for _, want := range c.values {
		if contains(current, want) {
			hit = true
			break
		}
	}
	if c.op == "!=" {
		return !hit
	}
	return hit
}

type and []Filter

func (a and) Query() string {
	parts := make([]string, 0, len(a))
	for _, f := range a {
		if q := f.Query(); q != "" {
			parts = append(parts, q)
		}
	}
	return strings.Join(parts, ";")
}

func (a and) Match(row domain.Row) bool {
	for _, f := range a {
		if !f.Match(row) {
			return false
		}
	}
	return true
}

func cellValues(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return val
	case string:
		if strings.Contains(val, ",") {
			return append(domain.SplitList(val), val)
		}
		return []string{val}
	default:
		return []string{domain.FormatValue(val)}
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func quote(v string) string {
	if v == "" || strings.ContainsAny(v, " ;,()=!<>'\"~") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}
