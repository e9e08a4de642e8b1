package impact

import (
	"math"

	"github.com/shopspring/decimal"
)

// Level is the ordinal risk of a price impact; higher is worse except Invalid,
// which means the impact could not be computed.
type Level int

const (
	LevelNormal Level = iota
	LevelHigh
	LevelVeryHigh
	LevelInvalid
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "NORMAL"
	case LevelHigh:
		return "HIGH"
	case LevelVeryHigh:
		return "VERY_HIGH"
	case LevelInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

const (
	MessageVeryHigh = "Price impact is very high. You may lose funds!"
	MessageHigh     = "Price impact is high"
	MessageInvalid  = "Unable to calculate price impact"

	displayUnavailable = "--"
	displayTiny        = "<0.01%"
)

// veryHighMultiple scales the warning threshold into the VERY_HIGH cutoff.
const veryHighMultiple = 10

// Result is the classified impact ready for display.
type Result struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Display string `json:"display"`
}

// Classify maps a percentage price impact onto a risk level. A nil, NaN or
// infinite percent yields LevelInvalid.
func Classify(percent *float64, warningThreshold float64) Result {
	if percent == nil || math.IsNaN(*percent) || math.IsInf(*percent, 0) {
		return Result{Level: LevelInvalid, Message: MessageInvalid, Display: displayUnavailable}
	}

	p := *percent
	result := Result{Display: Display(p)}
	switch {
	case p > veryHighMultiple*warningThreshold:
		result.Level = LevelVeryHigh
		result.Message = MessageVeryHigh
	case p > warningThreshold:
		result.Level = LevelHigh
		result.Message = MessageHigh
	default:
		result.Level = LevelNormal
	}
	return result
}

// Display formats a percentage with two decimals, or "<0.01%" for tiny values.
func Display(percent float64) string {
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return displayUnavailable
	}
	if math.Abs(percent) < 0.01 {
		return displayTiny
	}
	return decimal.NewFromFloat(percent).StringFixed(2) + "%"
}

// FromUSD derives a zap price impact from the USD value put in and the USD value
// that ends up in the position. It returns nil when the input value is unknown.
func FromUSD(amountInUSD, amountOutUSD float64) *float64 {
	if amountInUSD <= 0 || math.IsNaN(amountInUSD) || math.IsNaN(amountOutUSD) {
		return nil
	}
	p := (amountInUSD - amountOutUSD) / amountInUSD * 100
	return &p
}
