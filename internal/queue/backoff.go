package queue

import "time"

// maxRetryDelay caps the exponential backoff so a job with a large retry
// budget never sleeps longer than this between attempts.
const maxRetryDelay = 15 * time.Minute

// RetryDelay returns the backoff before retry number attempt (1-based) on a
// lane: the lane's base delay doubled per prior attempt, capped.
func RetryDelay(lane Lane, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := PolicyFor(lane).BaseDelay
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
