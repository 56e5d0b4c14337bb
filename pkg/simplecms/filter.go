package simplecms

import (
	"slices"
)

// Match reports whether the entry satisfies every predicate of the filter.
// An entry lacking a field compares as absent: it equals only an absent
// value, is never ordered against anything, and is never in a set.
func (f Filter) Match(ct *ContentType, e *Entry) bool {
	for _, p := range f {
		if !p.Match(ct, e) {
			return false
		}
	}
	return true
}

// Match reports whether the entry satisfies the predicate.
func (p Predicate) Match(ct *ContentType, e *Entry) bool {
	v, _ := e.Attr(p.Field)
	if kind, _ := ct.AttrKind(p.Field); kind == KindTags {
		return p.matchTags(v.tags)
	}
	switch p.Op {
	case OpEq:
		return v.Equal(p.Value)
	case OpNe:
		return !v.Equal(p.Value)
	case OpIn:
		return slices.ContainsFunc(p.Values, v.Equal)
	case OpNin:
		return !slices.ContainsFunc(p.Values, v.Equal)
	}
	if v.IsAbsent() || p.Value.IsAbsent() {
		return false
	}
	c := Compare(v, p.Value)
	switch p.Op {
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

// matchTags applies set semantics: eq means "has all of", in means "has any
// of".
func (p Predicate) matchTags(tags []string) bool {
	switch p.Op {
	case OpEq:
		return hasAllTags(tags, p.Value.tags)
	case OpNe:
		return !hasAllTags(tags, p.Value.tags)
	case OpIn:
		return hasAnyTag(tags, p.Values)
	case OpNin:
		return !hasAnyTag(tags, p.Values)
	}
	return false
}

func hasAllTags(tags, want []string) bool {
	if len(want) == 0 {
		return len(tags) == 0
	}
	for _, w := range want {
		if !slices.Contains(tags, w) {
			return false
		}
	}
	return true
}

func hasAnyTag(tags []string, values []Value) bool {
	for _, v := range values {
		for _, w := range v.tags {
			if slices.Contains(tags, w) {
				return true
			}
		}
	}
	return false
}

// CompareEntries orders two entries by the given rule. Callers append
// tie-breakers to make the order total.
func CompareEntries(a, b *Entry, order []OrderField) int {
	for _, f := range order {
		av, _ := a.Attr(f.Field)
		bv, _ := b.Attr(f.Field)
		c := Compare(av, bv)
		if f.Field == AttrID {
			c = slices.Compare(a.ID[:], b.ID[:])
		}
		if f.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// SortEntries sorts entries in place by order followed by _position and _id.
func SortEntries(entries []*Entry, order []OrderField) {
	order = withTieBreakers(order)
	slices.SortStableFunc(entries, func(a, b *Entry) int {
		return CompareEntries(a, b, order)
	})
}

// Paginate returns the 1-based page of entries. Out-of-range pages are empty.
func Paginate(entries []*Entry, page, perPage int) []*Entry {
	if page < 1 || perPage < 1 || page-1 > len(entries)/perPage {
		return []*Entry{}
	}
	start := (page - 1) * perPage
	if start >= len(entries) {
		return []*Entry{}
	}
	end := min(start+perPage, len(entries))
	return entries[start:end]
}
