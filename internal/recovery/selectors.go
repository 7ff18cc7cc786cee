package recovery

import (
	"fmt"
	"strings"
)

// AlternativeSelectors generates looser CSS selectors to try when the
// original one matched nothing. Order is by decreasing specificity; callers
// usually take the first.
func AlternativeSelectors(original string) []string {
	var alternatives []string

	switch {
	case strings.HasPrefix(original, "#"):
		id := original[1:]
		alternatives = append(alternatives,
			fmt.Sprintf(`[id=%q]`, id),
			fmt.Sprintf(`*[id*=%q]`, id),
			fmt.Sprintf(`input[id=%q]`, id),
			fmt.Sprintf(`button[id=%q]`, id),
		)
	case strings.HasPrefix(original, "."):
		class := original[1:]
		alternatives = append(alternatives,
			fmt.Sprintf(`[class*=%q]`, class),
			fmt.Sprintf(`*[class~=%q]`, class),
			"div."+class,
			"span."+class,
		)
	case strings.Contains(original, "["):
		alternatives = append(alternatives,
			strings.Replace(original, "=", "*=", 1),
			strings.Replace(original, "[", "*[", 1),
			"*"+original,
		)
	}

	alternatives = append(alternatives,
		fmt.Sprintf("%s, %s:enabled", original, original),
		fmt.Sprintf("%s, %s:visible", original, original),
	)

	return dedupeStrings(alternatives)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
