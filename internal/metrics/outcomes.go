package metrics

import (
	"sort"
	"strings"
	"unicode"
)

// OutcomeBucket is the count of one outcome for one test type.
type OutcomeBucket struct {
	Type    string
	Outcome string
	Count   int64
}

// FlattenOutcomes converts the per-type outcome maps of stats into rows
// sorted by descending count, then by type and outcome for stability.
func FlattenOutcomes(types []TypeStats) []OutcomeBucket {
	var rows []OutcomeBucket
	for _, ts := range types {
		for outcome, count := range ts.Outcomes {
			rows = append(rows, OutcomeBucket{Type: ts.Type, Outcome: outcome, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Type == rows[j].Type {
				return rows[i].Outcome < rows[j].Outcome
			}
			return rows[i].Type < rows[j].Type
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

var friendlyOutcomes = map[string]string{
	"":               "Unknown",
	"none":           "Completed",
	"invalid_config": "Invalid configuration",
	"duplicate_id":   "Duplicate ID",
	"internal":       "Internal error",
}

// FriendlyOutcome returns a human readable label for an outcome label such as
// "out_of_memory" or "could-not-create-task".
func FriendlyOutcome(label string) string {
	cleaned := strings.TrimSpace(label)
	if alias, ok := friendlyOutcomes[strings.ToLower(cleaned)]; ok {
		return alias
	}

	words := strings.FieldsFunc(cleaned, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	if len(words) == 0 {
		return "Unknown"
	}
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return capitalize(strings.Join(words, " "))
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
