package metrics

import "sort"

// ErrorBucket is the number of failed sessions for one error kind.
type ErrorBucket struct {
	Kind  string `json:"kind" yaml:"kind"`
	Count int    `json:"count" yaml:"count"`
}

// FlattenErrorKinds converts a kind->count map into rows sorted by descending
// count, then by kind for stability.
func FlattenErrorKinds(kinds map[string]int) []ErrorBucket {
	if len(kinds) == 0 {
		return nil
	}
	rows := make([]ErrorBucket, 0, len(kinds))
	for kind, count := range kinds {
		rows = append(rows, ErrorBucket{Kind: kind, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
