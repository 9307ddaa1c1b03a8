// Package normalization turns raw indexer payloads into canonical transaction events.
package normalization

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
)

// ErrMalformedInput marks a payload or element that cannot be normalized.
var ErrMalformedInput = errors.New("malformed input")

// MissingSignature is recorded when the indexer omits the signature.
const MissingSignature = "N/A"

// accountKeys are the JSON keys whose string values identify accounts
// anywhere in an event payload.
var accountKeys = map[string]struct{}{
	"account":         {},
	"fromUserAccount": {},
	"toUserAccount":   {},
	"userAccount":     {},
}

// Result is the outcome of normalizing one delivered batch.
type Result struct {
	Events  []*domain.TransactionEvent
	Skipped []error // one entry per element that was not an object
}

// Normalizer converts indexer JSON into TransactionEvents.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a Normalizer. A nil logger disables logging.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger}
}

// Normalize accepts a single event object or an array of event objects.
// Individual non-object elements are skipped and reported in Result.Skipped;
// only a payload that is neither an object nor an array returns an error.
func (n *Normalizer) Normalize(payload []byte) (*Result, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrMalformedInput)
	}

	root := gjson.ParseBytes(payload)
	result := &Result{}

	switch {
	case root.IsObject():
		result.Events = append(result.Events, n.normalizeEvent(root))
	case root.IsArray():
		idx := 0
		root.ForEach(func(_, elem gjson.Result) bool {
			if !elem.IsObject() {
				err := fmt.Errorf("%w: element %d is %s, not an object", ErrMalformedInput, idx, elem.Type)
				n.logger.Warn("skipping malformed event", zap.Int("index", idx), zap.Error(err))
				result.Skipped = append(result.Skipped, err)
			} else {
				result.Events = append(result.Events, n.normalizeEvent(elem))
			}
			idx++
			return true
		})
	default:
		return nil, fmt.Errorf("%w: payload is %s, want object or array", ErrMalformedInput, root.Type)
	}

	return result, nil
}

// normalizeEvent builds one TransactionEvent, applying defaults for missing fields.
func (n *Normalizer) normalizeEvent(obj gjson.Result) *domain.TransactionEvent {
	ev := &domain.TransactionEvent{
		Signature:        stringOr(obj.Get("signature"), MissingSignature),
		Source:           stringOr(obj.Get("source"), domain.DefaultSource),
		Description:      stringOr(obj.Get("description"), ""),
		Transfers:        extractTransfers(obj),
		InvolvedAccounts: make(map[string]struct{}),
		RawPayload:       []byte(obj.Raw),
	}

	for _, t := range ev.Transfers {
		if t.Account != "" {
			ev.InvolvedAccounts[t.Account] = struct{}{}
		}
	}
	collectAccounts(obj, ev.InvolvedAccounts)

	return ev
}

// extractTransfers reads structuredTransfers when present, otherwise the
// indexer's nativeTransfers. Anything malformed yields no transfer.
func extractTransfers(obj gjson.Result) []domain.Transfer {
	if st := obj.Get("structuredTransfers"); st.IsArray() {
		return readTransfers(st, "lamports", "account")
	}
	if nt := obj.Get("nativeTransfers"); nt.IsArray() {
		return readTransfers(nt, "amount", "toUserAccount", "fromUserAccount")
	}
	return []domain.Transfer{}
}

func readTransfers(arr gjson.Result, amountKey string, accountFields ...string) []domain.Transfer {
	out := []domain.Transfer{}
	arr.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		lamports, ok := lamportsOf(item.Get(amountKey))
		if !ok {
			return true
		}
		t := domain.Transfer{Lamports: lamports}
		for _, f := range accountFields {
			if acc := item.Get(f); acc.Type == gjson.String && acc.Str != "" {
				t.Account = acc.Str
				break
			}
		}
		out = append(out, t)
		return true
	})
	return out
}

// lamportsOf accepts non-negative integral JSON numbers only.
func lamportsOf(v gjson.Result) (uint64, bool) {
	if v.Type != gjson.Number || v.Num < 0 {
		return 0, false
	}
	u := v.Uint()
	if float64(u) != v.Num {
		return 0, false
	}
	return u, true
}

// collectAccounts walks the payload and records every account-valued key.
func collectAccounts(v gjson.Result, into map[string]struct{}) {
	v.ForEach(func(key, val gjson.Result) bool {
		if val.IsObject() || val.IsArray() {
			collectAccounts(val, into)
			return true
		}
		if key.Type != gjson.String {
			return true
		}
		if _, ok := accountKeys[key.Str]; ok && val.Type == gjson.String && val.Str != "" {
			into[val.Str] = struct{}{}
		}
		return true
	})
}

func stringOr(v gjson.Result, def string) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return def
}
