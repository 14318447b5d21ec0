package metrics

import "sort"

// ErrorCount is the number of failures sharing one error label.
type ErrorCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// SortErrorCounts converts a label->count map into rows sorted by descending
// count, then by label for stability.
func SortErrorCounts(counts map[string]int64) []ErrorCount {
	if len(counts) == 0 {
		return nil
	}
	rows := make([]ErrorCount, 0, len(counts))
	for label, count := range counts {
		rows = append(rows, ErrorCount{Label: label, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
