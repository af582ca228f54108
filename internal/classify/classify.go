package classify

import (
	"strings"
	"time"
)

// Category is the failure taxonomy consumed by the cascade orchestrator.
type Category string

const (
	CategoryPermanent   Category = "permanent"
	CategoryNetwork     Category = "network"
	CategoryServerError Category = "server_error"
	CategoryRateLimit   Category = "rate_limit"
	CategoryParsing     Category = "parsing"
	CategoryValidation  Category = "validation"
	CategoryStrategyAPI Category = "strategy_api"
	CategoryUnknown     Category = "unknown"
)

// matcher pairs a category with the message fragments that select it.
// Order matters: more specific patterns are checked before generic ones,
// so "429" wins over the 5xx bucket and permanent status codes win over
// everything else.
type matcher struct {
	category Category
	patterns []string
}

var matchers = []matcher{
	{CategoryPermanent, []string{"401", "403", "404", "410", "unauthorized", "forbidden", "not found", "gone"}},
	{CategoryNetwork, []string{"timeout", "timed out", "connection refused", "connection reset", "no such host", "network is unreachable"}},
	{CategoryRateLimit, []string{"429", "too many requests", "rate limit"}},
	{CategoryServerError, []string{"500", "502", "503", "internal server error", "bad gateway", "service unavailable"}},
	{CategoryParsing, []string{"json", "parse", "unmarshal", "unexpected end of", "invalid character"}},
	{CategoryValidation, []string{"validation failed"}},
	{CategoryStrategyAPI, []string{"citelink error", "translator error", "extractor error", "no translator available", "model overloaded"}},
}

// Categorize maps an error to its failure category. A nil error is unknown.
func Categorize(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	return CategorizeMessage(err.Error())
}

// CategorizeMessage classifies a raw failure message.
func CategorizeMessage(message string) Category {
	lower := strings.ToLower(message)
	for _, m := range matchers {
		for _, pattern := range m.patterns {
			if strings.Contains(lower, pattern) {
				return m.category
			}
		}
	}
	return CategoryUnknown
}

// IsPermanent reports whether an error should stop the cascade outright.
func IsPermanent(err error) bool {
	return Categorize(err) == CategoryPermanent
}

var retryableCategories = map[Category]struct{}{
	CategoryNetwork:     {},
	CategoryServerError: {},
	CategoryRateLimit:   {},
	CategoryStrategyAPI: {},
}

// IsRetryable reports whether the failure is worth retrying automatically.
// Unknown failures are not retried here to avoid retry storms on
// unclassified faults.
func IsRetryable(err error) bool {
	return CategoryRetryable(Categorize(err))
}

// IsRetryableConservative is the opt-in variant that additionally retries
// unknown failures.
func IsRetryableConservative(err error) bool {
	category := Categorize(err)
	return CategoryRetryable(category) || category == CategoryUnknown
}

// CategoryRetryable reports whether a category qualifies for automatic retry.
func CategoryRetryable(category Category) bool {
	_, ok := retryableCategories[category]
	return ok
}

const maxRetryDelay = 60 * time.Second

var retryBaseDelays = map[Category]time.Duration{
	CategoryNetwork:     2 * time.Second,
	CategoryServerError: 5 * time.Second,
	CategoryRateLimit:   10 * time.Second,
	CategoryStrategyAPI: 5 * time.Second,
}

// RetryDelay returns the backoff before retry number attempt (1-based) for a
// category: base * 2^(attempt-1), capped at 60s. Non-retryable categories
// get zero.
func RetryDelay(category Category, attempt int) time.Duration {
	base, ok := retryBaseDelays[category]
	if !ok {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
