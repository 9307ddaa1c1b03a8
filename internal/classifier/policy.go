package classifier

import (
	"fmt"
	"strings"
)

// Policy decides how address matches and the value threshold combine.
type Policy string

const (
	// PolicyOr: any address match, or amount at or above threshold.
	PolicyOr Policy = "or"
	// PolicyAnd: an address match is required, and then either the amount
	// meets the threshold or the match is an AI agent.
	PolicyAnd Policy = "and"
)

// ParsePolicy parses a policy name, case-insensitively. Empty means PolicyOr.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyOr, nil
	case PolicyOr, PolicyAnd:
		return p, nil
	default:
		return "", fmt.Errorf("unknown significance policy %q", s)
	}
}
