package grid

import (
	"sync"
	"time"

	"github.com/alim08/treasury_line/pkg/models"
)

// DefaultHighlightTTL is how long an updated row stays highlighted.
const DefaultHighlightTTL = 500 * time.Millisecond

// Highlighter is a TTL set of recently updated keys. Safe for concurrent use.
type Highlighter struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time
}

// NewHighlighter returns a Highlighter with the given TTL; ttl <= 0 uses
// DefaultHighlightTTL.
func NewHighlighter(ttl time.Duration) *Highlighter {
	if ttl <= 0 {
		ttl = DefaultHighlightTTL
	}
	return &Highlighter{ttl: ttl, now: time.Now, expires: make(map[string]time.Time)}
}

// Mark (re)starts the highlight for keys.
func (h *Highlighter) Mark(keys ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	until := h.now().Add(h.ttl)
	for _, k := range keys {
		h.expires[k] = until
	}
}

// Active reports whether key is still highlighted.
func (h *Highlighter) Active(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	until, ok := h.expires[key]
	return ok && h.now().Before(until)
}

// Sweep drops expired keys and returns how many remain.
func (h *Highlighter) Sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	for k, until := range h.expires {
		if !now.Before(until) {
			delete(h.expires, k)
		}
	}
	return len(h.expires)
}

// Merge applies update onto existing by CUSIP. Existing rows keep their
// position; bonds not seen before are appended. It returns the merged
// slice and the CUSIPs whose quote changed.
func Merge(existing, update []models.Bond) ([]models.Bond, []string) {
	merged := make([]models.Bond, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, b := range merged {
		index[b.CUSIP] = i
	}

	var changed []string
	for _, b := range update {
		i, ok := index[b.CUSIP]
		if !ok {
			index[b.CUSIP] = len(merged)
			merged = append(merged, b)
			changed = append(changed, b.CUSIP)
			continue
		}
		if merged[i] != b {
			merged[i] = b
			changed = append(changed, b.CUSIP)
		}
	}
	return merged, changed
}
