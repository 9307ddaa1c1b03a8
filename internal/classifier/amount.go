package classifier

import (
	"math/big"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
)

// solAmountPattern matches "<n>[.<decimals>] SOL" anywhere in a description.
var solAmountPattern = regexp.MustCompile(`(\d+(\.\d+)?)\s*SOL`)

const lamportsExp = -9

// StructuredAmount sums transfer lamports and converts to SOL exactly.
func StructuredAmount(transfers []domain.Transfer) decimal.Decimal {
	sum := new(big.Int)
	for _, t := range transfers {
		sum.Add(sum, new(big.Int).SetUint64(t.Lamports))
	}
	return decimal.NewFromBigInt(sum, lamportsExp)
}

// TextualAmount returns the first SOL amount mentioned in description, or zero.
func TextualAmount(description string) decimal.Decimal {
	m := solAmountPattern.FindStringSubmatch(description)
	if m == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ExtractAmount prefers the structured sum when it is non-zero and falls
// back to the description otherwise.
func ExtractAmount(ev *domain.TransactionEvent) decimal.Decimal {
	if len(ev.Transfers) > 0 {
		if s := StructuredAmount(ev.Transfers); s.IsPositive() {
			return s
		}
	}
	return TextualAmount(ev.Description)
}
