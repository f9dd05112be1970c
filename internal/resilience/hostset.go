package resilience

import (
	"strings"
	"sync"
	"time"
)

// HostSet lazily maintains one [Breaker] per remote hostname. The HTTP proxy
// tool can be pointed at any number of tenant-chosen endpoints, so breakers
// are created on first use rather than registered up front.
//
// The set grows monotonically. Hostnames are tenant-supplied but each entry
// is two words of state; eviction is not worth the bookkeeping at the
// request volumes this service sees.
type HostSet struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewHostSet returns a HostSet whose breakers use the given threshold and
// cooldown (see [NewBreaker] for defaulting).
func NewHostSet(threshold int, cooldown time.Duration) *HostSet {
	return &HostSet{
		threshold: threshold,
		cooldown:  cooldown,
		breakers:  make(map[string]*Breaker),
	}
}

// For returns the breaker for host, creating it if needed. The host is
// lowercased so "API.example.com" and "api.example.com" share state.
func (hs *HostSet) For(host string) *Breaker {
	host = strings.ToLower(host)

	hs.mu.Lock()
	defer hs.mu.Unlock()

	b, ok := hs.breakers[host]
	if !ok {
		b = NewBreaker(hs.threshold, hs.cooldown)
		hs.breakers[host] = b
	}
	return b
}

// Len reports the number of tracked hosts.
func (hs *HostSet) Len() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return len(hs.breakers)
}
