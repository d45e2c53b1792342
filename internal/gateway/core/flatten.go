package core

import (
	"strings"

	"rd3/pkg/domain"
)

// ReferenceKeys is the priority list used to collapse nested references.
var ReferenceKeys = []string{"id", "value", "subjectID", "sampleID", "experimentID", "label"}

const hrefColumn = "_href"

// Flatten converts a decoded catalog item into a flat row. Object values are
// replaced by their first present reference key, lists of objects by the
// comma-joined keys, empty objects by nil. The _href column is dropped.
func Flatten(item map[string]any) domain.Row {
	row := make(domain.Row, len(item))
	for col, value := range item {
		if col == hrefColumn {
			continue
		}
		row[col] = flattenValue(value)
	}
	return row
}

func flattenValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return reference(v)
	case []any:
		if len(v) == 0 {
			return nil
		}
		parts := make([]string, 0, len(v))
		for _, item := range v {
			var ref any
			if obj, ok := item.(map[string]any); ok {
				ref = reference(obj)
			} else {
				ref = item
			}
			if ref == nil {
				continue
			}
			parts = append(parts, domain.FormatValue(ref))
		}
		if len(parts) == 0 {
			return nil
		}
		return strings.Join(parts, ",")
	default:
		return v
	}
}

func reference(obj map[string]any) any {
	if len(obj) == 0 {
		return nil
	}
	for _, key := range ReferenceKeys {
		if v, ok := obj[key]; ok && v != nil {
			return v
		}
	}
	return nil
}
