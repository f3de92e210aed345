package fetcher

import (
	"strings"
	"sync"
	"time"
)

const maxBackoffShift = 5 // spacing multiplier is capped at 32x

// hostState tracks the pacing of one upstream hostname.
type hostState struct {
	lastRequest time.Time
	errorCount  int
}

// hostLimiter spaces requests per hostname. Required spacing is
// baseInterval x 2^min(consecutiveErrors, 5): hosts that keep failing are
// backed off exponentially, hosts that recover reset immediately.
type hostLimiter struct {
	mu           sync.Mutex
	baseInterval time.Duration
	hosts        map[string]*hostState
	now          func() time.Time
}

func newHostLimiter(baseInterval time.Duration) *hostLimiter {
	return &hostLimiter{
		baseInterval: baseInterval,
		hosts:        make(map[string]*hostState),
		now:          time.Now,
	}
}

// delay returns how long the caller must wait before hitting host, and marks
// the request time.
func (h *hostLimiter) delay(host string) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.hosts[host]
	if !ok {
		st = &hostState{}
		h.hosts[host] = st
	}

	shift := st.errorCount
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	spacing := h.baseInterval * (1 << shift)

	now := h.now()
	var wait time.Duration
	if !st.lastRequest.IsZero() {
		next := st.lastRequest.Add(spacing)
		if next.After(now) {
			wait = next.Sub(now)
		}
	}

	st.lastRequest = now.Add(wait)
	return wait
}

func (h *hostLimiter) recordSuccess(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.hosts[host]; ok {
		st.errorCount = 0
	}
}

func (h *hostLimiter) recordFailure(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.hosts[host]
	if !ok {
		st = &hostState{}
		h.hosts[host] = st
	}
	st.errorCount++
}

func (h *hostLimiter) errorCount(host string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.hosts[host]; ok {
		return st.errorCount
	}
	return 0
}

// expandSubdomain substitutes the {s} placeholder in a URL template with the
// given subdomain, or strips the placeholder when none is configured.
func expandSubdomain(urlTemplate, sub string) string {
	if sub == "" {
		return strings.Replace(urlTemplate, "{s}.", "", 1)
	}
	return strings.Replace(urlTemplate, "{s}", sub, 1)
}
