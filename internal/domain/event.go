package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultSource is used when the indexer omits the event source.
const DefaultSource = "Unknown"

// Transfer is a single native-asset movement within a transaction.
type Transfer struct {
	Account  string
	Lamports uint64
}

// TransactionEvent is the canonical form of one indexer event.
// It is built once by the normalizer and never mutated afterwards.
type TransactionEvent struct {
	Signature        string
	Source           string
	Description      string
	Transfers        []Transfer
	InvolvedAccounts map[string]struct{}
	RawPayload       []byte // original JSON of this event
}

// Involves reports whether account appears in InvolvedAccounts.
func (e *TransactionEvent) Involves(account string) bool {
	_, ok := e.InvolvedAccounts[account]
	return ok
}

// SortedAccounts returns InvolvedAccounts in lexical order.
func (e *TransactionEvent) SortedAccounts() []string {
	out := make([]string, 0, len(e.InvolvedAccounts))
	for a := range e.InvolvedAccounts {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// ClassificationResult is the derived classification of one event.
type ClassificationResult struct {
	Label          Label
	AmountSOL      decimal.Decimal // always >= 0
	MatchedAddress string          // empty when no watched address matched
}

// Matched reports whether a watched address matched.
func (r ClassificationResult) Matched() bool {
	return r.MatchedAddress != ""
}
