// Package policy resolves enforcement profiles and classifies processes
// against them.
package policy

import (
	"strings"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// Classify decides whether an observation violates the profile.
// Patterns are matched case-insensitively as substrings of either the
// process name or its command line. A whitelist match always wins.
func Classify(profile domain.Profile, obs domain.ProcessObservation) domain.Classification {
	name := strings.ToLower(obs.Name)
	cmdline := strings.ToLower(obs.CommandLine)

	if matchesAny(profile.Whitelist, name, cmdline) {
		return domain.Whitelisted
	}
	if matchesAny(profile.Blacklist, name, cmdline) {
		return domain.Blacklisted
	}
	return domain.Neutral
}

func matchesAny(patterns []string, name, cmdline string) bool {
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			// An empty pattern would match every process.
			continue
		}
		if strings.Contains(name, p) || strings.Contains(cmdline, p) {
			return true
		}
	}
	return false
}
