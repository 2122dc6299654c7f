package policy

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxSuggestDistance bounds how different a suggestion may be.
const maxSuggestDistance = 3

// Suggest returns the known profile name closest to name, or "" when
// nothing is close enough or name is already known.
func Suggest(name string, known []string) string {
	target := strings.ToLower(name)
	best := ""
	bestDist := maxSuggestDistance + 1

	for _, k := range known {
		if k == name {
			return ""
		}
		d := levenshtein.ComputeDistance(target, strings.ToLower(k))
		if d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}
