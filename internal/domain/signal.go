package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxDescriptionUnits is the persisted description limit in UTF-16 code units.
const MaxDescriptionUnits = 200

// SignalRecord is one row of the append-only signal log.
// Identity is (Timestamp, Signature).
type SignalRecord struct {
	Timestamp   time.Time // UTC
	Label       Label
	AmountSOL   decimal.Decimal
	Description string // at most MaxDescriptionUnits code units
	Signature   string
}

// NewSignalRecord builds a record from a classified event stamped at now.
func NewSignalRecord(now time.Time, ev *TransactionEvent, res ClassificationResult) *SignalRecord {
	return &SignalRecord{
		Timestamp:   now.UTC(),
		Label:       res.Label,
		AmountSOL:   res.AmountSOL,
		Description: TruncateDescription(ev.Description),
		Signature:   ev.Signature,
	}
}

// TruncateDescription cuts s to MaxDescriptionUnits UTF-16 code units
// without splitting a surrogate pair.
func TruncateDescription(s string) string {
	units := 0
	for i, r := range s {
		n := 1
		if r > 0xFFFF {
			n = 2 // encoded as a surrogate pair
		}
		if units+n > MaxDescriptionUnits {
			return s[:i]
		}
		units += n
	}
	return s
}

// TradeSignal is the ephemeral result of one aggregation window.
type TradeSignal struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Records     []SignalRecord
	Count       int
}

// CountByLabel tallies the window's records per label.
func (s *TradeSignal) CountByLabel() map[Label]int {
	out := make(map[Label]int, len(AllLabels))
	for _, r := range s.Records {
		out[r.Label]++
	}
	return out
}
