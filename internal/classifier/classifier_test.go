package classifier

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/normalization"
)

func newEvent(description string, transfers []domain.Transfer, accounts ...string) *domain.TransactionEvent {
	ev := &domain.TransactionEvent{
		Signature:        "sig",
		Source:           domain.DefaultSource,
		Description:      description,
		Transfers:        transfers,
		InvolvedAccounts: make(map[string]struct{}),
		RawPayload:       []byte(`{}`),
	}
	for _, a := range accounts {
		ev.InvolvedAccounts[a] = struct{}{}
	}
	return ev
}

func mustClassifier(t *testing.T, threshold int64, opts ...Option) *Classifier {
	t.Helper()
	c, err := New(DefaultRegistry(), decimal.NewFromInt(threshold), opts...)
	require.NoError(t, err)
	return c
}

func TestTextualAmount(t *testing.T) {
	tests := []struct {
		desc string
		want string
	}{
		{"Swap 150 SOL for USDC", "150"},
		{"sent 0.5 SOL", "0.5"},
		{"sent 12.25SOL to vault", "12.25"},
		{"first 3 SOL then 9 SOL", "3"},
		{"transfer 100 USDC", "0"},
		{"", "0"},
		{"SOL only", "0"},
	}
	for _, tt := range tests {
		got := TextualAmount(tt.desc)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("TextualAmount(%q) = %s, want %s", tt.desc, got, tt.want)
		}
	}
}

func TestStructuredAmount(t *testing.T) {
	got := StructuredAmount([]domain.Transfer{
		{Account: "a", Lamports: 1_500_000_000},
		{Account: "b", Lamports: 500_000_001},
	})
	assert.True(t, got.Equal(decimal.RequireFromString("2.000000001")), "got %s", got)

	big := StructuredAmount([]domain.Transfer{
		{Lamports: 18446744073709551615},
		{Lamports: 18446744073709551615},
	})
	assert.True(t, big.Equal(decimal.RequireFromString("36893488147.41910323")), "got %s", big)

	assert.True(t, StructuredAmount(nil).IsZero())
}

func TestExtractAmount_PrefersStructured(t *testing.T) {
	ev := newEvent("Swap 150 SOL for USDC", []domain.Transfer{{Account: "a", Lamports: 2_000_000_000}})
	assert.True(t, ExtractAmount(ev).Equal(decimal.NewFromInt(2)))

	zero := newEvent("Swap 150 SOL for USDC", []domain.Transfer{{Account: "a", Lamports: 0}})
	assert.True(t, ExtractAmount(zero).Equal(decimal.NewFromInt(150)))
}

func TestClassify_CapitalFlowWinsOverAgent(t *testing.T) {
	c := mustClassifier(t, 100)
	ev := newEvent("", nil, PippinAddress, JupiterAddress)

	res := c.Classify(ev)
	assert.Equal(t, domain.LabelCapitalFlow, res.Label)
	assert.Equal(t, JupiterAddress, res.MatchedAddress)
	assert.True(t, c.IsSignificant(res))
}

func TestClassify_RawPayloadSubstringMatch(t *testing.T) {
	c := mustClassifier(t, 100)
	ev := newEvent("", nil)
	ev.RawPayload = []byte(`{"instructions":[{"programId":"` + ZerebroAddress + `"}]}`)

	res := c.Classify(ev)
	assert.Equal(t, domain.LabelAIAgent, res.Label)
	assert.Equal(t, ZerebroAddress, res.MatchedAddress)
}

func TestClassify_WhaleAndGeneral(t *testing.T) {
	c := mustClassifier(t, 100)

	whale := c.Classify(newEvent("Swap 100 SOL", nil))
	assert.Equal(t, domain.LabelWhaleSwap, whale.Label)
	assert.False(t, whale.Matched())
	assert.True(t, c.IsSignificant(whale))

	general := c.Classify(newEvent("Swap 99.9999 SOL", nil))
	assert.Equal(t, domain.LabelGeneral, general.Label)
	assert.False(t, c.IsSignificant(general))
}

func TestIsSignificant_Policies(t *testing.T) {
	orC := mustClassifier(t, 100)
	andC := mustClassifier(t, 100, WithPolicy(PolicyAnd))

	tests := []struct {
		name    string
		res     domain.ClassificationResult
		wantOr  bool
		wantAnd bool
	}{
		{"capital flow zero amount", domain.ClassificationResult{Label: domain.LabelCapitalFlow, AmountSOL: decimal.Zero, MatchedAddress: JupiterAddress}, true, false},
		{"capital flow large", domain.ClassificationResult{Label: domain.LabelCapitalFlow, AmountSOL: decimal.NewFromInt(500), MatchedAddress: JupiterAddress}, true, true},
		{"agent zero amount", domain.ClassificationResult{Label: domain.LabelAIAgent, AmountSOL: decimal.Zero, MatchedAddress: PippinAddress}, true, true},
		{"whale no match", domain.ClassificationResult{Label: domain.LabelWhaleSwap, AmountSOL: decimal.NewFromInt(150)}, true, false},
		{"general", domain.ClassificationResult{Label: domain.LabelGeneral, AmountSOL: decimal.NewFromInt(1)}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantOr, orC.IsSignificant(tt.res), "or policy")
			assert.Equal(t, tt.wantAnd, andC.IsSignificant(tt.res), "and policy")
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrNegativeThreshold)

	_, err = New(nil, decimal.NewFromInt(1), WithPolicy("xor"))
	assert.Error(t, err)

	c, err := New(nil, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, PolicyOr, c.Policy())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy(" AND ")
	require.NoError(t, err)
	assert.Equal(t, PolicyAnd, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyOr, p)
}

func TestNewRegistry_Ordering(t *testing.T) {
	_, err := NewRegistry(
		WatchedAddress{Address: PippinAddress, Role: domain.RoleAIAgent},
		WatchedAddress{Address: JupiterAddress, Role: domain.RoleCapitalFlowSource},
	)
	assert.ErrorIs(t, err, ErrRegistryOrder)

	_, err = NewRegistry(
		WatchedAddress{Address: JupiterAddress, Role: domain.RoleCapitalFlowSource},
		WatchedAddress{Address: JupiterAddress, Role: domain.RoleCapitalFlowSource},
	)
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	_, err = NewRegistry(WatchedAddress{Address: "x", Role: "WHALE"})
	assert.ErrorIs(t, err, ErrInvalidEntry)

	r := DefaultRegistry()
	require.Equal(t, 4, r.Len())
	entries := r.Entries()
	assert.Equal(t, domain.RoleCapitalFlowSource, entries[0].Role)
	assert.Equal(t, domain.RoleAIAgent, entries[3].Role)
}

// Two-event batch: a value-only whale and a low-value capital flow are both persisted.
func TestScenario_ThresholdHundredBatch(t *testing.T) {
	registry, err := NewRegistry(WatchedAddress{Address: JupiterAddress, Name: "Jupiter", Role: domain.RoleCapitalFlowSource})
	require.NoError(t, err)
	c, err := New(registry, decimal.NewFromInt(100))
	require.NoError(t, err)

	payload := `[
		{"signature": "s1", "description": "Swap 150 SOL for USDC"},
		{"signature": "s2", "accountData": [{"account": "` + JupiterAddress + `"}],
		 "structuredTransfers": [{"account": "x", "lamports": 1500000000}, {"account": "y", "lamports": 500000000}]}
	]`
	res, err := normalization.NewNormalizer(nil).Normalize([]byte(payload))
	require.NoError(t, err)
	require.Len(t, res.Events, 2)

	first := c.Classify(res.Events[0])
	assert.Equal(t, domain.LabelWhaleSwap, first.Label)
	assert.True(t, first.AmountSOL.Equal(decimal.NewFromInt(150)))
	assert.True(t, c.IsSignificant(first))

	second := c.Classify(res.Events[1])
	assert.Equal(t, domain.LabelCapitalFlow, second.Label)
	assert.True(t, second.AmountSOL.Equal(decimal.NewFromInt(2)))
	assert.True(t, c.IsSignificant(second))
}
