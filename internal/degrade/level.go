package degrade

// Level grades how far execution has backed off from the full plan.
type Level string

const (
	LevelNone        Level = "none"
	LevelMinimal     Level = "minimal"
	LevelModerate    Level = "moderate"
	LevelSignificant Level = "significant"
	LevelMaximum     Level = "maximum"
)

var levelRank = map[Level]int{
	LevelNone:        0,
	LevelMinimal:     1,
	LevelModerate:    2,
	LevelSignificant: 3,
	LevelMaximum:     4,
}

// String returns the string representation of the level.
func (l Level) String() string {
	return string(l)
}

// Rank returns the ordinal position of the level.
func (l Level) Rank() int {
	return levelRank[l]
}

// AtLeast reports whether l is at least as severe as other.
func (l Level) AtLeast(other Level) bool {
	return l.Rank() >= other.Rank()
}

// MaxLevel returns the more severe of two levels.
func MaxLevel(a, b Level) Level {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Strategy names a partial-completion approach.
type Strategy string

const (
	StrategySkipOptionalSteps    Strategy = "skip_optional_steps"
	StrategySimplifyActions      Strategy = "simplify_actions"
	StrategyReducePrecision      Strategy = "reduce_precision"
	StrategyFallbackToManual     Strategy = "fallback_to_manual"
	StrategyExtractAvailableData Strategy = "extract_available_data"
	StrategyCompleteCoreOnly     Strategy = "complete_core_only"
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	return string(s)
}
