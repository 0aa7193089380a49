// Package criteria describes which advertising peripherals a scan should
// report.
package criteria

import (
	"bytes"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/user/gattlink/advertising"
	"github.com/user/gattlink/bytecodec"
)

// DefaultDuration bounds a scan when no duration is set
const DefaultDuration = 10 * time.Second

// Predicate is one condition over decoded advertising data
type Predicate func(d *advertising.Data) bool

// Criteria is built per scan request and discarded after the scan. The zero
// value is not usable; call New.
type Criteria struct {
	addresses        map[string]struct{}
	predicates       []Predicate
	limit            int
	duration         time.Duration
	highPowerPreScan bool
}

// New returns criteria that match every peripheral for DefaultDuration
func New() *Criteria {
	return &Criteria{
		addresses: make(map[string]struct{}),
		duration:  DefaultDuration,
	}
}

// AllowAddresses adds device addresses to the allow-list. An empty list
// allows every address.
func (c *Criteria) AllowAddresses(addresses ...string) *Criteria {
	for _, a := range addresses {
		c.addresses[strings.ToUpper(a)] = struct{}{}
	}
	return c
}

// Require adds a predicate. All predicates must hold.
func (c *Criteria) Require(p Predicate) *Criteria {
	c.predicates = append(c.predicates, p)
	return c
}

// MatchExact requires a record of adType whose payload equals payload
func (c *Criteria) MatchExact(adType byte, payload []byte) *Criteria {
	want := append([]byte(nil), payload...)
	return c.Require(func(d *advertising.Data) bool {
		return d.AnyRecordMatches(adType, func(p []byte) bool { return bytes.Equal(p, want) })
	})
}

// MatchPrefix requires a record of adType whose payload starts with prefix
func (c *Criteria) MatchPrefix(adType byte, prefix []byte) *Criteria {
	want := append([]byte(nil), prefix...)
	return c.Require(func(d *advertising.Data) bool {
		return d.AnyRecordMatches(adType, func(p []byte) bool { return bytecodec.StartsWith(p, want) })
	})
}

// MatchServiceUUID requires id among the advertised service UUIDs
func (c *Criteria) MatchServiceUUID(id uuid.UUID) *Criteria {
	return c.Require(func(d *advertising.Data) bool { return d.HasServiceUUID(id) })
}

// MatchLocalName requires the complete local name to equal name
func (c *Criteria) MatchLocalName(name string) *Criteria {
	return c.MatchExact(advertising.ADTypeCompleteLocalName, []byte(name))
}

// WithLimit stops the scan after n distinct matches. n <= 0 means unbounded.
func (c *Criteria) WithLimit(n int) *Criteria {
	if n < 0 {
		n = 0
	}
	c.limit = n
	return c
}

// WithDuration bounds the scan. Non-positive durations restore the default.
func (c *Criteria) WithDuration(d time.Duration) *Criteria {
	if d <= 0 {
		d = DefaultDuration
	}
	c.duration = d
	return c
}

// WithHighPowerPreScan requests a low-latency pass at the start of the scan
func (c *Criteria) WithHighPowerPreScan(enabled bool) *Criteria {
	c.highPowerPreScan = enabled
	return c
}

// Matches reports whether every predicate holds for d. It does not look at
// the address allow-list.
func (c *Criteria) Matches(d *advertising.Data) bool {
	for _, p := range c.predicates {
		if !p(d) {
			return false
		}
	}
	return true
}

// AllowsAddress applies the allow-list, case-insensitively
func (c *Criteria) AllowsAddress(address string) bool {
	if len(c.addresses) == 0 {
		return true
	}
	_, ok := c.addresses[strings.ToUpper(address)]
	return ok
}

// Addresses returns the allow-list in no particular order
func (c *Criteria) Addresses() []string {
	out := make([]string, 0, len(c.addresses))
	for a := range c.addresses {
		out = append(out, a)
	}
	return out
}

// Limit returns the result limit; 0 means unbounded
func (c *Criteria) Limit() int { return c.limit }

// Duration returns the scan bound
func (c *Criteria) Duration() time.Duration { return c.duration }

// HighPowerPreScan reports whether a low-latency pre-scan was requested
func (c *Criteria) HighPowerPreScan() bool { return c.highPowerPreScan }
