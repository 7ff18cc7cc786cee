package recovery

// Strategy names a recovery approach. Strategies are ranked per handler by
// their observed success rate and tried in order.
type Strategy string

const (
	StrategyRetry               Strategy = "retry"
	StrategyRetryWithBackoff    Strategy = "retry_with_backoff"
	StrategyFallbackAction      Strategy = "fallback_action"
	StrategyAlternativeSelector Strategy = "alternative_selector"
	StrategyUserEscalation      Strategy = "user_escalation"
	StrategyDegradation         Strategy = "graceful_degradation"
	StrategySkipStep            Strategy = "skip_step"
	StrategyRestartComponent    Strategy = "restart_component"
	StrategyAbortTask           Strategy = "abort_task"
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	return string(s)
}

// strategyTable maps error types to their default strategy candidates, in
// preference order before success-rate ranking.
var strategyTable = map[ErrorType][]Strategy{
	ErrorTimeout:         {StrategyRetry, StrategyRetryWithBackoff},
	ErrorElementNotFound: {StrategyAlternativeSelector, StrategyRetry, StrategySkipStep},
	ErrorBrowser:         {StrategyRetry, StrategyAlternativeSelector},
	ErrorNetwork:         {StrategyRetryWithBackoff, StrategyUserEscalation},
	ErrorAIModel:         {StrategyRetryWithBackoff, StrategyFallbackAction},
	ErrorAuthentication:  {StrategyUserEscalation, StrategyAbortTask},
	ErrorValidation:      {StrategyFallbackAction, StrategyUserEscalation},
	ErrorTask:            {StrategyFallbackAction, StrategyUserEscalation},
	ErrorSecurity:        {StrategyAbortTask},
	ErrorSystem:          {StrategyRetry, StrategyUserEscalation},
}
