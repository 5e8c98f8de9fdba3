package metrics

import "sort"

// ReasonCount is the aggregated failure count for one reason label.
type ReasonCount struct {
	Reason string
	Count  int
}

// FlattenReasons converts a reason->count map into a sorted slice of rows.
// Rows are sorted by descending count, then by reason for stability.
func FlattenReasons(reasons map[string]int) []ReasonCount {
	if len(reasons) == 0 {
		return nil
	}
	rows := make([]ReasonCount, 0, len(reasons))
	for reason, count := range reasons {
		rows = append(rows, ReasonCount{Reason: reason, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Reason < rows[j].Reason
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
