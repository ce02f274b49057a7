package cookies

import (
	"net/http"
	"strings"
	"sync"
)

// authCookie is the browser cookie holding a logged-in user's OAuth token.
const authCookie = "auth-token"

// Credential is one cookie set from the pool.
type Credential struct {
	Raw       string // cookie header value as configured
	AuthToken string // value of the auth-token cookie, "" if absent
}

// ParseCredential extracts the auth token from a cookie header value. A value
// without any "=" is taken to be the bare token.
func ParseCredential(raw string) Credential {
	raw = strings.TrimSpace(raw)
	c := Credential{Raw: raw}
	if raw == "" {
		return c
	}
	if !strings.Contains(raw, "=") {
		c.AuthToken = raw
		return c
	}
	parsed, err := http.ParseCookie(raw)
	if err != nil {
		return c
	}
	for _, ck := range parsed {
		if ck.Name == authCookie {
			c.AuthToken = ck.Value
			break
		}
	}
	return c
}

// entry holds one credential and its SWRR state.
type entry struct {
	cred          Credential
	penalty       int
	currentWeight int // SWRR running weight
}

// Pool implements smooth weighted round-robin selection with penalty-based
// deprioritization. Thread-safe via sync.Mutex.
type Pool struct {
	mu      sync.Mutex
	entries []entry
}

// NewPool creates a pool from cookie header values, deduplicating entries.
func NewPool(raw []string) *Pool {
	p := &Pool{}
	p.entries = p.merge(raw)
	return p
}

// Select picks a credential using smooth weighted round-robin based on
// inverse penalty weights. Returns the zero Credential if the pool is empty.
func (p *Pool) Select() Credential {
	if p == nil {
		return Credential{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch len(p.entries) {
	case 0:
		return Credential{}
	case 1:
		return p.entries[0].cred
	}

	maxPenalty := 0
	for i := range p.entries {
		maxPenalty = max(maxPenalty, p.entries[i].penalty)
	}

	totalWeight := 0
	best := 0
	for i := range p.entries {
		w := maxPenalty - p.entries[i].penalty + 1
		p.entries[i].currentWeight += w
		totalWeight += w
		if p.entries[i].currentWeight > p.entries[best].currentWeight {
			best = i
		}
	}

	p.entries[best].currentWeight -= totalWeight
	return p.entries[best].cred
}

// Penalize deprioritizes c, typically after the platform rejected it.
func (p *Pool) Penalize(c Credential) {
	if p == nil || c.Raw == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.entries {
		if p.entries[i].cred.Raw == c.Raw {
			p.entries[i].penalty++
			break
		}
	}
	p.reroot()
}

// Update replaces the pool contents. Entries still present keep their
// penalties, new ones start at 0.
func (p *Pool) Update(raw []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = p.merge(raw)
	p.reroot()
}

// Count returns the number of entries in the pool.
func (p *Pool) Count() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// merge builds a deduplicated entry list, carrying over existing penalties.
// Must be called with p.mu held (or before p is shared).
func (p *Pool) merge(raw []string) []entry {
	existing := make(map[string]int, len(p.entries))
	for _, e := range p.entries {
		existing[e.cred.Raw] = e.penalty
	}

	seen := make(map[string]struct{}, len(raw))
	var entries []entry
	for _, r := range raw {
		c := ParseCredential(r)
		if c.Raw == "" {
			continue
		}
		if _, ok := seen[c.Raw]; ok {
			continue
		}
		seen[c.Raw] = struct{}{}
		entries = append(entries, entry{cred: c, penalty: existing[c.Raw]})
	}
	return entries
}

// reroot subtracts the minimum penalty from all entries so the lowest is 0.
// Must be called with p.mu held.
func (p *Pool) reroot() {
	if len(p.entries) == 0 {
		return
	}
	minPenalty := p.entries[0].penalty
	for _, e := range p.entries[1:] {
		minPenalty = min(minPenalty, e.penalty)
	}
	for i := range p.entries {
		p.entries[i].penalty -= minPenalty
	}
}
