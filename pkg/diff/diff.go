// Package diff detects which aircraft of a full-refresh report changed since
// the previous report.
package diff

import (
	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/PR-CYBR/adsb-ingest/pkg/model"
)

// SignatureFields are the volatile members a change is detected on. Signal
// strength and message counters are left out on purpose: they move on every
// report without anything meaningful happening.
var SignatureFields = []string{
	"hex",
	"version",
	"seen",
	"seen_pos",
	"lat",
	"lon",
	"alt_baro",
	"alt_geom",
	"gs",
	"ias",
	"tas",
	"track",
	"baro_rate",
	"geom_rate",
	"nic",
	"rc",
}

// ConfigCompatibleWithStandardLibrary sorts map keys.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Signature is the canonical JSON of the signature fields of a record. Absent
// members serialize as null, so two records with the same relevant content
// always have the same signature.
func Signature(a *model.Aircraft) string {
	fields := a.Fields()
	interesting := make(map[string]interface{}, len(SignatureFields))
	for _, k := range SignatureFields {
		interesting[k] = fields[k]
	}
	b, err := json.Marshal(interesting)
	if err != nil {
		// Values decoded from JSON always marshal; fall back to the hex so the
		// record is still tracked.
		return a.Hex
	}
	return string(b)
}

type Result struct {
	// Changed holds new aircraft and aircraft whose signature moved, in
	// report order.
	Changed []model.Aircraft
	Evicted int
	Tracked int
}

// Cache maps hex -> digest of the last signature seen. It is not safe for
// concurrent use.
type Cache struct {
	digests map[string]uint64
}

func NewCache() *Cache {
	return &Cache{digests: map[string]uint64{}}
}

// Update diffs a full report against the cache and replaces the cache with
// the report's signatures. Aircraft without a hex are ignored; aircraft not
// in the report are evicted, so one that reappears is always reported again.
func (c *Cache) Update(aircraft []model.Aircraft) Result {
	seen := make(map[string]uint64, len(aircraft))
	var changed []model.Aircraft
	for i := range aircraft {
		a := &aircraft[i]
		if a.Hex == "" {
			continue
		}
		digest := xxhash.Sum64String(Signature(a))
		seen[a.Hex] = digest
		if prev, ok := c.digests[a.Hex]; !ok || prev != digest {
			changed = append(changed, *a)
		}
	}

	evicted := 0
	for hex := range c.digests {
		if _, ok := seen[hex]; !ok {
			evicted++
		}
	}
	c.digests = seen

	return Result{Changed: changed, Evicted: evicted, Tracked: len(seen)}
}

func (c *Cache) Len() int {
	return len(c.digests)
}

func (c *Cache) Contains(hex string) bool {
	_, ok := c.digests[hex]
	return ok
}
