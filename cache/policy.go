package cache

import "time"

// Policy describes when a key is revalidated and how failures are retried.
type Policy struct {
	RevalidateOnFocus     bool
	RevalidateOnReconnect bool
	RevalidateOnMount     bool

	// DedupingInterval is the window after a successful fetch during which
	// further fetches of the same key are served from the cache.
	// Zero disables the window.
	DedupingInterval time.Duration

	// ErrorRetryCount bounds automatic retries of retryable fetch failures.
	ErrorRetryCount    int
	ErrorRetryInterval time.Duration
}

// DefaultPolicy is the baseline used by most resources.
func DefaultPolicy() Policy {
	return Policy{
		RevalidateOnFocus:     false,
		RevalidateOnReconnect: true,
		DedupingInterval:      2 * time.Second,
		ErrorRetryCount:       3,
		ErrorRetryInterval:    5 * time.Second,
	}
}

// ReferencePolicy suits low-churn reference data such as genres or publishers.
func ReferencePolicy() Policy {
	p := DefaultPolicy()
	p.DedupingInterval = time.Minute
	return p
}

// VolatilePolicy suits high-churn lists such as search results: every mount
// and focus refetches and nothing is deduplicated beyond in-flight requests.
func VolatilePolicy() Policy {
	return Policy{
		RevalidateOnFocus:     true,
		RevalidateOnReconnect: true,
		RevalidateOnMount:     true,
	}
}

// Allows reports whether the policy revalidates on trigger.
func (p Policy) Allows(t Trigger) bool {
	switch t {
	case TriggerFocus:
		return p.RevalidateOnFocus
	case TriggerReconnect:
		return p.RevalidateOnReconnect
	default:
		return false
	}
}
