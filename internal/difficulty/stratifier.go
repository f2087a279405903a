// Package difficulty maps a difficulty tier onto popularity bands of a candidate pool and
// onto the live-search page ranges each tier samples from.
package difficulty

import (
	"math/rand"
	"sort"

	"musicquiz/internal/core"
)

// Band is a half-open range [Start, End) of positions in a pool sorted by rank,
// position 0 being the most popular. End < 0 means unbounded.
type Band struct {
	Start int
	End   int
}

// Contains reports whether a sorted position falls inside the band
func (b Band) Contains(pos int) bool {
	return pos >= b.Start && (b.End < 0 || pos < b.End)
}

// PageRange is an inclusive range of search offsets
type PageRange struct {
	Min int
	Max int
}

// Pick draws an offset uniformly from the range
func (r PageRange) Pick(rng *rand.Rand) int {
	if r.Max <= r.Min || rng == nil {
		return r.Min
	}
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

type Policy struct {
	Band        Band
	CorrectPage PageRange
	DecoyPage   PageRange
}

var policies = map[core.Difficulty]Policy{
	core.DifficultyEasy: {
		Band:        Band{Start: 0, End: 5},
		CorrectPage: PageRange{Min: 0, Max: 50},
		DecoyPage:   PageRange{Min: 200, Max: 300},
	},
	core.DifficultyMedium: {
		Band:        Band{Start: 5, End: 10},
		CorrectPage: PageRange{Min: 200, Max: 300},
		DecoyPage:   PageRange{Min: 500, Max: 600},
	},
	core.DifficultyHard: {
		Band:        Band{Start: 10, End: -1},
		CorrectPage: PageRange{Min: 500, Max: 600},
		DecoyPage:   PageRange{Min: 800, Max: 900},
	},
}

// For returns the policy of a difficulty. Unknown tiers are treated as hard.
func For(d core.Difficulty) Policy {
	if p, ok := policies[d]; ok {
		return p
	}
	return policies[core.DifficultyHard]
}

// Page returns the live-search page range for the given pool
func (p Policy) Page(pool core.Pool) PageRange {
	if pool == core.PoolDecoy {
		return p.DecoyPage
	}
	return p.CorrectPage
}

// Order returns a copy of the candidates sorted by rank, most popular first. Equal ranks
// keep their catalog order.
func Order(candidates []core.Track) []core.Track {
	sorted := append([]core.Track(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rank > sorted[j].Rank
	})
	return sorted
}

// Rank splits an ordered pool into the tracks inside the band and the remaining tracks,
// both still most popular first. When the band is empty the best-ranked track leads rest.
func (p Policy) Rank(ordered []core.Track) (inBand, rest []core.Track) {
	for i := range ordered {
		if p.Band.Contains(i) {
			inBand = append(inBand, ordered[i])
		} else {
			rest = append(rest, ordered[i])
		}
	}
	return inBand, rest
}
