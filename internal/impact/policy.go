package impact

// Policy turns a pool fee tier into the warning threshold (in percentage
// points) used by Classify. The tiers are product policy and may be overridden.
type Policy struct {
	StableMaxFeeBps     float64 `validate:"gte=0"`
	CorrelatedMaxFeeBps float64 `validate:"gtefield=StableMaxFeeBps"`
	Stable              float64 `validate:"gt=0"`
	Correlated          float64 `validate:"gt=0"`
	Default             float64 `validate:"gt=0"`
}

// DefaultPolicy: stable pairs (fee <= 10bps) warn at 0.1%, correlated pairs
// (fee <= 25bps) at 0.25%, everything else at 1%.
func DefaultPolicy() Policy {
	return Policy{
		StableMaxFeeBps:     10,
		CorrelatedMaxFeeBps: 25,
		Stable:              0.1,
		Correlated:          0.25,
		Default:             1,
	}
}

// WarningThreshold returns the threshold for a pool charging feeBps.
func (p Policy) WarningThreshold(feeBps float64) float64 {
	switch {
	case feeBps <= p.StableMaxFeeBps:
		return p.Stable
	case feeBps <= p.CorrelatedMaxFeeBps:
		return p.Correlated
	default:
		return p.Default
	}
}

// ClassifyForFee is Classify with the threshold derived from the fee tier.
func (p Policy) ClassifyForFee(percent *float64, feeBps float64) Result {
	return Classify(percent, p.WarningThreshold(feeBps))
}
