package queue

import "time"

// Decision is the retry policy outcome for a single failed attempt.
type Decision struct {
	// Terminal means the item has exhausted its retry budget and must be
	// marked failed permanently.
	Terminal bool
	// RetryCount is the attempt count after this failure.
	RetryCount int
	// NextAttempt is when the item becomes eligible again. Only set when
	// Terminal is false.
	NextAttempt time.Time
}

// Decide applies the retry policy to a failed attempt. The new retry count is
// retryCount+1; the item goes terminal once it reaches maxRetries. Otherwise
// the next attempt is scheduled failedAt + 2^newCount minutes, so the first
// retry waits 2 minutes, the second 4, the third 8. The delay grows strictly
// with each attempt, which keeps scheduled_for monotonically increasing.
func Decide(retryCount, maxRetries int, failedAt time.Time) Decision {
	next := retryCount + 1
	if next >= maxRetries {
		return Decision{Terminal: true, RetryCount: next}
	}
	delay := time.Duration(1<<uint(next)) * time.Minute
	return Decision{RetryCount: next, NextAttempt: failedAt.Add(delay)}
}
