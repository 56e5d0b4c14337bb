package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// whereBuilder renders filters over the entries table. Field values live in
// the data jsonb column in their natural JSON shape and are cast by kind.
type whereBuilder struct {
	ct    *simplecms.ContentType
	args  []interface{}
	conds []string
}

func newWhereBuilder(ct *simplecms.ContentType) *whereBuilder {
	b := &whereBuilder{ct: ct}
	b.conds = append(b.conds, "content_type_id = "+b.arg(ct.ID))
	return b
}

func (b *whereBuilder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *whereBuilder) and(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *whereBuilder) String() string {
	return strings.Join(b.conds, " AND ")
}

// jsonKey quotes a field name as a SQL string literal. Field names are
// restricted to [a-z0-9_] by the registry; quotes are doubled regardless.
func jsonKey(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// Shapes of the date strings Coerce accepts. Hours, minutes and seconds are
// bounded so that a matching string always casts.
const (
	datePattern     = `^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])`
	clockPattern    = `([01]\d|2[0-3]):[0-5]\d:[0-5]\d(\.\d+)?`
	zonePattern     = `(Z|[+-]\d{2}:\d{2})$`
	dateTimePattern = datePattern + `(T` + clockPattern + zonePattern + `|[T ]` + clockPattern + `$|$)`
)

// attrExpr returns the SQL expression of a field or implicit attribute.
// Stored values that no longer fit the field's kind evaluate to NULL, the
// same values simplecms.DecodeValues drops on read.
func attrExpr(ct *simplecms.ContentType, name string) (string, simplecms.FieldKind, error) {
	switch name {
	case simplecms.AttrID:
		return "id::text", simplecms.KindString, nil
	case simplecms.AttrPermalink:
		return `permalink COLLATE "C"`, simplecms.KindString, nil
	case simplecms.AttrPosition:
		return "position", simplecms.KindInteger, nil
	case simplecms.AttrCreatedAt:
		return "created_at", simplecms.KindDateTime, nil
	case simplecms.AttrUpdatedAt:
		return "updated_at", simplecms.KindDateTime, nil
	}
	f, ok := ct.Field(name)
	if !ok {
		return "", "", fmt.Errorf("unknown field %q", name)
	}
	return fieldExpr(jsonKey(name), f.Kind), f.Kind, nil
}

func fieldExpr(key string, kind simplecms.FieldKind) string {
	raw := "(data->" + key + ")"
	text := "(data->>" + key + ")"
	typeIs := func(types ...string) string {
		return "jsonb_typeof(" + raw + ") IN ('" + strings.Join(types, "', '") + "')"
	}
	trimmed := "btrim(" + text + ")"

	switch kind {
	case simplecms.KindInteger:
		return "(CASE WHEN " + typeIs("number") + " THEN CASE WHEN " + text + "::numeric = trunc(" + text + "::numeric) THEN " +
			text + "::numeric END END)"
	case simplecms.KindFloat:
		return "(CASE WHEN " + typeIs("number") + " THEN " + text + "::numeric END)"
	case simplecms.KindBoolean:
		return "(CASE WHEN " + typeIs("boolean") + " THEN " + text + "::boolean END)"
	case simplecms.KindDate:
		return "(CASE WHEN " + typeIs("string") + " THEN CASE WHEN " + trimmed + " ~ '" + dateTimePattern + "' THEN " +
			trimmed + "::date END END)"
	case simplecms.KindDateTime:
		return "(CASE WHEN " + typeIs("string") + " THEN CASE WHEN " + trimmed + " ~ '" + dateTimePattern + "' THEN " +
			"CASE WHEN " + trimmed + " ~ '" + zonePattern + "' THEN " + trimmed + "::timestamptz" +
			" ELSE " + trimmed + "::timestamp AT TIME ZONE 'UTC' END END END)"
	case simplecms.KindTags:
		return "(CASE WHEN " + typeIs("array") + " THEN " + raw + " END)"
	case simplecms.KindText:
		return "(CASE WHEN " + typeIs("string", "number", "boolean") + " THEN " + text + ` END) COLLATE "C"`
	case simplecms.KindEmail:
		return "(CASE WHEN " + typeIs("string") + " AND " + trimmed + " <> '' THEN " + trimmed + ` END) COLLATE "C"`
	}
	return "(CASE WHEN " + typeIs("string", "number", "boolean") + " AND " + trimmed + " <> '' THEN " + text + ` END) COLLATE "C"`
}

// sqlValue converts a value to a driver argument matching attrExpr's type.
func sqlValue(v simplecms.Value) interface{} {
	switch v.Kind() {
	case simplecms.KindInteger:
		return v.Int()
	case simplecms.KindFloat:
		return v.Float()
	case simplecms.KindBoolean:
		return v.Bool()
	case simplecms.KindDate, simplecms.KindDateTime:
		return v.Time()
	case simplecms.KindTags:
		return v.Tags()
	}
	return v.Str()
}

func sqlValues(kind simplecms.FieldKind, values []simplecms.Value) interface{} {
	switch kind {
	case simplecms.KindInteger:
		out := make([]int64, 0, len(values))
		for _, v := range values {
			out = append(out, v.Int())
		}
		return out
	case simplecms.KindFloat:
		out := make([]float64, 0, len(values))
		for _, v := range values {
			out = append(out, v.Float())
		}
		return out
	case simplecms.KindBoolean:
		out := make([]bool, 0, len(values))
		for _, v := range values {
			out = append(out, v.Bool())
		}
		return out
	case simplecms.KindDate, simplecms.KindDateTime:
		out := make([]time.Time, 0, len(values))
		for _, v := range values {
			out = append(out, v.Time())
		}
		return out
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if kind == simplecms.KindTags {
			out = append(out, v.Tags()...)
			continue
		}
		out = append(out, v.Str())
	}
	return out
}

func arrayType(kind simplecms.FieldKind) string {
	switch kind {
	case simplecms.KindInteger, simplecms.KindFloat:
		return "numeric[]"
	case simplecms.KindBoolean:
		return "boolean[]"
	case simplecms.KindDate:
		return "date[]"
	case simplecms.KindDateTime:
		return "timestamptz[]"
	}
	return "text[]"
}

// addFilter renders the predicates with the same semantics as
// simplecms.Filter.Match.
func (b *whereBuilder) addFilter(filter simplecms.Filter) error {
	for _, p := range filter {
		if err := b.addPredicate(p); err != nil {
			return err
		}
	}
	return nil
}

func (b *whereBuilder) addPredicate(p simplecms.Predicate) error {
	expr, kind, err := attrExpr(b.ct, p.Field)
	if err != nil {
		return err
	}
	if kind == simplecms.KindTags {
		return b.addTagsPredicate(expr, p)
	}

	switch p.Op {
	case simplecms.OpEq:
		if p.Value.IsAbsent() {
			b.and(expr + " IS NULL")
		} else {
			b.and(expr + " = " + b.arg(sqlValue(p.Value)))
		}
	case simplecms.OpNe:
		if p.Value.IsAbsent() {
			b.and(expr + " IS NOT NULL")
		} else {
			b.and(expr + " IS DISTINCT FROM " + b.arg(sqlValue(p.Value)))
		}
	case simplecms.OpIn:
		b.and(fmt.Sprintf("%s = ANY(%s::%s)", expr, b.arg(sqlValues(kind, p.Values)), arrayType(kind)))
	case simplecms.OpNin:
		b.and(fmt.Sprintf("(%s IS NULL OR NOT (%s = ANY(%s::%s)))", expr, expr, b.arg(sqlValues(kind, p.Values)), arrayType(kind)))
	case simplecms.OpGt, simplecms.OpGte, simplecms.OpLt, simplecms.OpLte:
		if p.Value.IsAbsent() {
			b.and("FALSE")
			return nil
		}
		b.and(fmt.Sprintf("%s %s %s", expr, comparison[p.Op], b.arg(sqlValue(p.Value))))
	default:
		return fmt.Errorf("unsupported operator %q", p.Op)
	}
	return nil
}

var comparison = map[simplecms.Operator]string{
	simplecms.OpGt:  ">",
	simplecms.OpGte: ">=",
	simplecms.OpLt:  "<",
	simplecms.OpLte: "<=",
}

func (b *whereBuilder) addTagsPredicate(expr string, p simplecms.Predicate) error {
	tags := "COALESCE(" + expr + ", '[]'::jsonb)"
	switch p.Op {
	case simplecms.OpEq, simplecms.OpNe:
		var cond string
		if want := p.Value.Tags(); len(want) == 0 {
			cond = "jsonb_array_length(" + tags + ") = 0"
		} else {
			cond = tags + " @> " + b.arg(want) + "::jsonb"
		}
		if p.Op == simplecms.OpNe {
			cond = "NOT (" + cond + ")"
		}
		b.and(cond)
	case simplecms.OpIn:
		b.and(tags + " ?| " + b.arg(sqlValues(simplecms.KindTags, p.Values)) + "::text[]")
	case simplecms.OpNin:
		b.and("NOT (" + tags + " ?| " + b.arg(sqlValues(simplecms.KindTags, p.Values)) + "::text[])")
	default:
		return fmt.Errorf("unsupported tags operator %q", p.Op)
	}
	return nil
}

// orderClause renders an ordering. Absent values sort first ascending and
// last descending, as simplecms.Compare does.
func orderClause(ct *simplecms.ContentType, order []simplecms.OrderField) (string, error) {
	parts := make([]string, 0, len(order))
	for _, f := range order {
		expr, _, err := attrExpr(ct, f.Field)
		if err != nil {
			return "", err
		}
		if f.Field == simplecms.AttrID {
			expr = "id"
		}
		if f.Desc {
			parts = append(parts, expr+" DESC NULLS LAST")
		} else {
			parts = append(parts, expr+" ASC NULLS FIRST")
		}
	}
	return strings.Join(parts, ", "), nil
}
