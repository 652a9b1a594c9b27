package reducer

import (
	"cmp"
	"sort"

	"github.com/papercomputeco/truthstore/pkg/observation"
	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/value"
)

// comparator returns >0 when a ranks above b.
type comparator func(a, b *observation.Observation) int

func byObservedAt(a, b *observation.Observation) int {
	return a.ObservedAt.Compare(b.ObservedAt)
}

func byPriority(a, b *observation.Observation) int {
	return cmp.Compare(a.SourcePriority, b.SourcePriority)
}

func bySpecificity(a, b *observation.Observation) int {
	return cmp.Compare(a.SpecificityScore, b.SpecificityScore)
}

var strategyRank = map[schema.Strategy]comparator{
	schema.LastWrite:       byObservedAt,
	schema.HighestPriority: byPriority,
	schema.MostSpecific:    bySpecificity,
}

var tieRank = map[schema.TieBreaker]comparator{
	schema.TieObservedAt:     byObservedAt,
	schema.TieSourcePriority: byPriority,
	schema.TieSpecificity:    bySpecificity,
}

// pick returns the winning observation for a single-winner strategy.
// candidates must be in reducer order and non-empty. A candidate only
// displaces the current best when it ranks strictly higher, so remaining
// ties resolve to the earliest candidate in reducer order.
func pick(candidates []*observation.Observation, policy schema.MergePolicy) *observation.Observation {
	primary, ok := strategyRank[policy.Strategy]
	if !ok {
		primary = byObservedAt
	}
	secondary := tieRank[policy.TieBreaker]

	best := candidates[0]
	for _, c := range candidates[1:] {
		r := primary(c, best)
		if r == 0 && secondary != nil {
			r = secondary(c, best)
		}
		if r > 0 {
			best = c
		}
	}
	return best
}

// mergeArray unions the distinct values of field across candidates. Array
// values contribute their elements, scalars contribute themselves and nulls
// contribute nothing. The result is sorted by value order so it does not
// depend on which observation arrived first.
func mergeArray(candidates []*observation.Observation, field string) (value.Value, []string) {
	seen := make(map[string]struct{})
	var elems []value.Value
	var ids []string

	add := func(v value.Value) {
		c := v.Canonical()
		if _, dup := seen[c]; dup {
			return
		}
		seen[c] = struct{}{}
		elems = append(elems, v)
	}

	for _, o := range candidates {
		v := o.Fields[field]
		if v.IsNull() {
			continue
		}
		ids = append(ids, o.ID)

		if arr, ok := v.AsArray(); ok {
			for _, e := range arr {
				if !e.IsNull() {
					add(e)
				}
			}
			continue
		}
		add(v)
	}

	value.Sort(elems)
	sort.Strings(ids)
	if ids == nil {
		ids = []string{}
	}

	return value.Array(elems...), ids
}
