package simplecms

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"go.einride.tech/aip/ordering"
)

// Pagination defaults.
const (
	DefaultPerPage = 25
	MaxPerPage     = 100
)

// NormalizePage parses a page number. Anything that is not an integer >= 1
// becomes page 1.
func NormalizePage(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// NormalizePerPage parses a page size. Missing, non-numeric or non-positive
// values become def; values above max are clamped to max.
func NormalizePerPage(s string, def, max int) int {
	if max < 1 {
		max = MaxPerPage
	}
	if def < 1 || def > max {
		def = min(DefaultPerPage, max)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	switch {
	case err != nil || n < 1:
		return def
	case n > max:
		return max
	}
	return n
}

// ParseOrderBy parses an ordering rule of the content type. Accepted forms are
// "field", "field asc", "field desc", "field.asc", "field.desc", and
// comma-separated lists of those. It reports false when the rule is malformed
// or names an unknown field.
func ParseOrderBy(ct *ContentType, s string) ([]OrderField, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	parts := strings.Split(s, ",")
	for i, part := range parts {
		tokens := strings.Fields(part)
		if len(tokens) == 1 {
			if name, dir, ok := strings.Cut(tokens[0], "."); ok {
				tokens = []string{name, dir}
			}
		}
		if len(tokens) == 2 {
			tokens[1] = strings.ToLower(tokens[1])
		}
		parts[i] = strings.Join(tokens, " ")
	}

	var ob ordering.OrderBy
	if err := ob.UnmarshalString(strings.Join(parts, ",")); err != nil {
		return nil, false
	}
	if len(ob.Fields) == 0 {
		return nil, false
	}
	fields := make([]OrderField, 0, len(ob.Fields))
	for _, f := range ob.Fields {
		if _, ok := ct.AttrKind(f.Path); !ok {
			return nil, false
		}
		fields = append(fields, OrderField{Field: f.Path, Desc: f.Desc})
	}
	return fields, true
}

// DefaultOrder returns the content type's default ordering rule, or
// _position ascending when the rule is empty or invalid.
func DefaultOrder(ct *ContentType) []OrderField {
	if fields, ok := ParseOrderBy(ct, ct.OrderBy); ok {
		return fields
	}
	return []OrderField{{Field: AttrPosition}}
}

// NormalizeOrderBy parses a requested ordering, falling back to the content
// type's default rule when the request is empty or unusable.
func NormalizeOrderBy(ct *ContentType, s string) []OrderField {
	if fields, ok := ParseOrderBy(ct, s); ok {
		return fields
	}
	return DefaultOrder(ct)
}

// withTieBreakers appends _position and _id so that every ordering is total.
func withTieBreakers(order []OrderField) []OrderField {
	out := append([]OrderField(nil), order...)
	var hasPos, hasID bool
	for _, f := range out {
		switch f.Field {
		case AttrPosition:
			hasPos = true
		case AttrID:
			hasID = true
		}
	}
	if !hasPos {
		out = append(out, OrderField{Field: AttrPosition})
	}
	if !hasID {
		out = append(out, OrderField{Field: AttrID})
	}
	return out
}

// ParseWhere parses a filter given as a JSON object. Keys are "field" (an
// equality match) or "field.op" with op one of eq, ne, gt, gte, lt, lte, in,
// nin. Values are coerced to the field's kind. Any problem is reported as a
// ValidationError on "where".
func ParseWhere(ct *ContentType, s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, NewValidationError("where", MsgInvalid)
	}
	return BuildFilter(ct, raw)
}

// BuildFilter converts a decoded where object into a Filter.
func BuildFilter(ct *ContentType, raw map[string]any) (Filter, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	verr := &ValidationError{}
	filter := make(Filter, 0, len(keys))
	for _, key := range keys {
		name, op := key, OpEq
		if n, o, ok := strings.Cut(key, "."); ok {
			name, op = n, Operator(strings.ToLower(o))
		}
		kind, ok := ct.AttrKind(name)
		if !ok || !op.IsValid() {
			verr.Add("where", key+" "+MsgInvalid)
			continue
		}
		if kind == KindTags && !op.isSetMatch() {
			verr.Add("where", key+" "+MsgInvalid)
			continue
		}
		p, err := buildPredicate(name, op, kind, raw[key])
		if err != nil {
			verr.Add("where", key+" "+MsgInvalid)
			continue
		}
		filter = append(filter, p)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return filter, nil
}

func (op Operator) isSetMatch() bool {
	switch op {
	case OpEq, OpNe, OpIn, OpNin:
		return true
	}
	return false
}

func buildPredicate(name string, op Operator, kind FieldKind, raw any) (Predicate, error) {
	p := Predicate{Field: name, Op: op}
	if op == OpIn || op == OpNin {
		items, ok := raw.([]any)
		if !ok {
			items = []any{raw}
		}
		for _, item := range items {
			if kind == KindTags {
				item = []any{item}
			}
			v, err := Coerce(kind, item)
			if err != nil {
				return p, err
			}
			if !v.IsAbsent() {
				p.Values = append(p.Values, v)
			}
		}
		return p, nil
	}
	v, err := Coerce(kind, raw)
	if err != nil {
		return p, err
	}
	p.Value = v
	return p, nil
}
