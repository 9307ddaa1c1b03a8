// Package classifier labels transaction events and decides which are
// significant enough to persist.
package classifier

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
)

// ErrNegativeThreshold is returned for a threshold below zero.
var ErrNegativeThreshold = errors.New("value threshold must not be negative")

// Classifier is a pure event → result function over a fixed registry and threshold.
type Classifier struct {
	registry  *Registry
	threshold decimal.Decimal
	policy    Policy
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithPolicy sets the significance policy.
func WithPolicy(p Policy) Option {
	return func(c *Classifier) {
		c.policy = p
	}
}

// New creates a Classifier. A nil registry uses DefaultRegistry.
func New(registry *Registry, threshold decimal.Decimal, opts ...Option) (*Classifier, error) {
	if threshold.IsNegative() {
		return nil, ErrNegativeThreshold
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	c := &Classifier{
		registry:  registry,
		threshold: threshold,
		policy:    PolicyOr,
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, err := ParsePolicy(string(c.policy)); err != nil {
		return nil, err
	}
	return c, nil
}

// Threshold returns the configured value threshold in SOL.
func (c *Classifier) Threshold() decimal.Decimal {
	return c.threshold
}

// Policy returns the configured significance policy.
func (c *Classifier) Policy() Policy {
	return c.policy
}

// Classify computes the label and amount for ev.
func (c *Classifier) Classify(ev *domain.TransactionEvent) domain.ClassificationResult {
	res := domain.ClassificationResult{
		Label:     domain.LabelGeneral,
		AmountSOL: ExtractAmount(ev),
	}

	if m, ok := c.registry.Match(ev); ok {
		res.Label = m.Role.Label()
		res.MatchedAddress = m.Address
		return res
	}

	if res.AmountSOL.GreaterThanOrEqual(c.threshold) {
		res.Label = domain.LabelWhaleSwap
	}
	return res
}

// IsSignificant reports whether res should be persisted.
func (c *Classifier) IsSignificant(res domain.ClassificationResult) bool {
	aboveThreshold := res.AmountSOL.GreaterThanOrEqual(c.threshold)

	if c.policy == PolicyAnd {
		return res.Label.IsAddressMatch() && (aboveThreshold || res.Label == domain.LabelAIAgent)
	}
	return res.Label.IsAddressMatch() || aboveThreshold
}
