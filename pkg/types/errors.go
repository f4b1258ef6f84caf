package types

import "errors"

// Sentinel errors returned by orchestrator components, checked with
// errors.Is by callers that need to distinguish retryable from fatal
// conditions.
var (
	ErrProviderRateLimited    = errors.New("advisor: provider rate limited")
	ErrProviderExhausted      = errors.New("advisor: no healthy provider available")
	ErrInvalidAdvisorResponse = errors.New("advisor: invalid response payload")
	ErrRiskRejection          = errors.New("risk: trade rejected")
	ErrSymbolBreakerOpen      = errors.New("execution: symbol circuit breaker open")
	ErrBrokerTransient        = errors.New("broker: transient error")
	ErrBrokerFatal            = errors.New("broker: fatal error")
	ErrConfigError            = errors.New("config: invalid configuration")
)
