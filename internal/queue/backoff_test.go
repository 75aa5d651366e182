package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestDecideBackoffDelays verifies the exponential schedule: the first retry
// waits 2 minutes, the second 4, the third 8.
func TestDecideBackoffDelays(t *testing.T) {
	failedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		retryCount int
		wantDelay  time.Duration
	}{
		{retryCount: 0, wantDelay: 2 * time.Minute},
		{retryCount: 1, wantDelay: 4 * time.Minute},
		{retryCount: 2, wantDelay: 8 * time.Minute},
		{retryCount: 3, wantDelay: 16 * time.Minute},
	}

	for _, tc := range cases {
		decision := Decide(tc.retryCount, 10, failedAt)
		assert.False(t, decision.Terminal, "retryCount=%d", tc.retryCount)
		assert.Equal(t, tc.retryCount+1, decision.RetryCount)
		assert.Equal(t, failedAt.Add(tc.wantDelay), decision.NextAttempt, "retryCount=%d", tc.retryCount)
	}
}

// TestDecideMonotonicity verifies each successive retry is scheduled strictly
// later than the previous one even when failures happen back to back.
func TestDecideMonotonicity(t *testing.T) {
	failedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	prev := failedAt
	for retryCount := 0; retryCount < 8; retryCount++ {
		decision := Decide(retryCount, 10, failedAt)
		assert.True(t, decision.NextAttempt.After(prev),
			"retry %d scheduled at %v, not after %v", decision.RetryCount, decision.NextAttempt, prev)
		prev = decision.NextAttempt
	}
}

// TestDecideTerminal verifies the item goes terminal exactly when the new
// retry count reaches the budget.
func TestDecideTerminal(t *testing.T) {
	failedAt := time.Now()

	// maxRetries=3: attempts 1 and 2 reschedule, attempt 3 is terminal.
	assert.False(t, Decide(0, 3, failedAt).Terminal)
	assert.False(t, Decide(1, 3, failedAt).Terminal)

	decision := Decide(2, 3, failedAt)
	assert.True(t, decision.Terminal)
	assert.Equal(t, 3, decision.RetryCount)
	assert.True(t, decision.NextAttempt.IsZero())
}

// TestDecideSmallBudgets verifies degenerate retry budgets fail immediately.
func TestDecideSmallBudgets(t *testing.T) {
	failedAt := time.Now()

	assert.True(t, Decide(0, 0, failedAt).Terminal)
	assert.True(t, Decide(0, 1, failedAt).Terminal)
	assert.False(t, Decide(0, 2, failedAt).Terminal)
}
