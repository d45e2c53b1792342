package domain

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities decide whether a staging row may be imported.
const (
	// SeverityBlock keeps the staging row out of the canonical tables.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but does not stop the import.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed check on a staging row.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Table    Table
	EntityID string
}

// Result aggregates violations from the checks run on one row.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// Add appends a single violation.
func (r *Result) Add(v Violation) {
	r.Violations = append(r.Violations, v)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Messages returns the messages of violations with the given severity.
func (r Result) Messages(severity Severity) []string {
	var out []string
	for _, v := range r.Violations {
		if v.Severity == severity {
			out = append(out, v.Message)
		}
	}
	return out
}
