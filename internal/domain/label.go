package domain

import "fmt"

// Label is the classification label attached to a transaction event.
type Label string

const (
	LabelGeneral     Label = "GENERAL"
	LabelCapitalFlow Label = "CAPITAL_FLOW"
	LabelAIAgent     Label = "AI_AGENT"
	LabelWhaleSwap   Label = "WHALE_SWAP"
)

// AllLabels lists every valid label in declaration order.
var AllLabels = []Label{LabelGeneral, LabelCapitalFlow, LabelAIAgent, LabelWhaleSwap}

// String returns the string representation of Label.
func (l Label) String() string {
	return string(l)
}

// IsValid checks if the label is one of the four enumerated values.
func (l Label) IsValid() bool {
	switch l {
	case LabelGeneral, LabelCapitalFlow, LabelAIAgent, LabelWhaleSwap:
		return true
	}
	return false
}

// IsAddressMatch reports whether the label can only result from a watched-address match.
func (l Label) IsAddressMatch() bool {
	return l == LabelCapitalFlow || l == LabelAIAgent
}

// ParseLabel converts persisted text back into a Label.
func ParseLabel(s string) (Label, error) {
	l := Label(s)
	if !l.IsValid() {
		return "", fmt.Errorf("unknown label %q", s)
	}
	return l, nil
}

// Role tags a watched address for classification tie-breaking.
type Role string

const (
	RoleCapitalFlowSource Role = "CAPITAL_FLOW_SOURCE"
	RoleAIAgent           Role = "AI_AGENT"
)

// IsValid checks if the role is a known value.
func (r Role) IsValid() bool {
	return r == RoleCapitalFlowSource || r == RoleAIAgent
}

// Label returns the classification label produced by a match on this role.
func (r Role) Label() Label {
	if r == RoleCapitalFlowSource {
		return LabelCapitalFlow
	}
	return LabelAIAgent
}
