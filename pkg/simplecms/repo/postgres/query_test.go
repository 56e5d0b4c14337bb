package postgres

import (
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

func queryTestType() *simplecms.ContentType {
	return &simplecms.ContentType{
		ID: uuid.MustParse("6f1c2a8e-0000-4000-8000-000000000001"),
		Fields: []simplecms.FieldDef{
			{Name: "title", Kind: simplecms.KindString},
			{Name: "price", Kind: simplecms.KindFloat},
			{Name: "released_on", Kind: simplecms.KindDate},
			{Name: "tags", Kind: simplecms.KindTags},
		},
	}
}

func TestWhereBuilder(t *testing.T) {
	ct := queryTestType()
	title := fieldExpr("'title'", simplecms.KindString)
	price := fieldExpr("'price'", simplecms.KindFloat)
	released := fieldExpr("'released_on'", simplecms.KindDate)
	tags := fieldExpr("'tags'", simplecms.KindTags)

	tests := []struct {
		name     string
		pred     simplecms.Predicate
		wantCond string
		wantArgs int
	}{
		{
			name:     "equality on text",
			pred:     simplecms.Predicate{Field: "title", Op: simplecms.OpEq, Value: simplecms.StringValue("a")},
			wantCond: title + ` = $2`,
			wantArgs: 2,
		},
		{
			name:     "equality on absent value",
			pred:     simplecms.Predicate{Field: "title", Op: simplecms.OpEq},
			wantCond: title + ` IS NULL`,
			wantArgs: 1,
		},
		{
			name:     "not equal keeps absent values",
			pred:     simplecms.Predicate{Field: "price", Op: simplecms.OpNe, Value: simplecms.FloatValue(1)},
			wantCond: price + ` IS DISTINCT FROM $2`,
			wantArgs: 2,
		},
		{
			name:     "range on date",
			pred:     simplecms.Predicate{Field: "released_on", Op: simplecms.OpGte, Value: simplecms.StringValue("x")},
			wantCond: released + ` >= $2`,
			wantArgs: 2,
		},
		{
			name:     "range against absent value matches nothing",
			pred:     simplecms.Predicate{Field: "price", Op: simplecms.OpLt},
			wantCond: `FALSE`,
			wantArgs: 1,
		},
		{
			name: "set membership",
			pred: simplecms.Predicate{Field: "price", Op: simplecms.OpIn, Values: []simplecms.Value{
				simplecms.FloatValue(1), simplecms.FloatValue(2),
			}},
			wantCond: price + ` = ANY($2::numeric[])`,
			wantArgs: 2,
		},
		{
			name:     "set exclusion keeps absent values",
			pred:     simplecms.Predicate{Field: "title", Op: simplecms.OpNin, Values: []simplecms.Value{simplecms.StringValue("a")}},
			wantCond: `(` + title + ` IS NULL OR NOT (` + title + ` = ANY($2::text[])))`,
			wantArgs: 2,
		},
		{
			name:     "tags contain all",
			pred:     simplecms.Predicate{Field: "tags", Op: simplecms.OpEq, Value: simplecms.TagsValue("a", "b")},
			wantCond: `COALESCE(` + tags + `, '[]'::jsonb) @> $2::jsonb`,
			wantArgs: 2,
		},
		{
			name:     "tags contain any",
			pred:     simplecms.Predicate{Field: "tags", Op: simplecms.OpIn, Values: []simplecms.Value{simplecms.TagsValue("a")}},
			wantCond: `COALESCE(` + tags + `, '[]'::jsonb) ?| $2::text[]`,
			wantArgs: 2,
		},
		{
			name:     "identifier compares as text",
			pred:     simplecms.Predicate{Field: simplecms.AttrID, Op: simplecms.OpEq, Value: simplecms.StringValue("x")},
			wantCond: `id::text = $2`,
			wantArgs: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newWhereBuilder(ct)
			require.NoError(t, b.addPredicate(tt.pred))
			assert.Equal(t, "content_type_id = $1 AND "+tt.wantCond, b.String())
			assert.Len(t, b.args, tt.wantArgs)
		})
	}
}

func TestWhereBuilder_UnknownField(t *testing.T) {
	b := newWhereBuilder(queryTestType())
	err := b.addPredicate(simplecms.Predicate{Field: "missing", Op: simplecms.OpEq})
	assert.Error(t, err)
}

func TestWhereBuilder_TagsRejectRanges(t *testing.T) {
	b := newWhereBuilder(queryTestType())
	err := b.addPredicate(simplecms.Predicate{Field: "tags", Op: simplecms.OpGt, Value: simplecms.TagsValue("a")})
	assert.Error(t, err)
}

func TestOrderClause(t *testing.T) {
	ct := queryTestType()
	clause, err := orderClause(ct, []simplecms.OrderField{
		{Field: "price", Desc: true},
		{Field: simplecms.AttrPosition},
		{Field: simplecms.AttrID},
	})
	require.NoError(t, err)
	assert.Equal(t, fieldExpr("'price'", simplecms.KindFloat)+` DESC NULLS LAST, position ASC NULLS FIRST, id ASC NULLS FIRST`, clause)

	_, err = orderClause(ct, []simplecms.OrderField{{Field: "missing"}})
	assert.Error(t, err)
}

func TestFieldExprGuardsCasts(t *testing.T) {
	tests := []struct {
		kind  simplecms.FieldKind
		guard string
		cast  string
	}{
		{kind: simplecms.KindInteger, guard: `jsonb_typeof((data->'f')) IN ('number')`, cast: `::numeric = trunc(`},
		{kind: simplecms.KindFloat, guard: `jsonb_typeof((data->'f')) IN ('number')`, cast: `::numeric`},
		{kind: simplecms.KindBoolean, guard: `jsonb_typeof((data->'f')) IN ('boolean')`, cast: `::boolean`},
		{kind: simplecms.KindDate, guard: `~ '` + dateTimePattern + `'`, cast: `::date`},
		{kind: simplecms.KindDateTime, guard: `~ '` + dateTimePattern + `'`, cast: `::timestamp AT TIME ZONE 'UTC'`},
		{kind: simplecms.KindTags, guard: `jsonb_typeof((data->'f')) IN ('array')`, cast: `THEN (data->'f') END`},
		{kind: simplecms.KindString, guard: `IN ('string', 'number', 'boolean')`, cast: `<> ''`},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			expr := fieldExpr("'f'", tt.kind)
			assert.Contains(t, expr, tt.guard)
			assert.Contains(t, expr, tt.cast)
			assert.True(t, strings.HasPrefix(expr, "(CASE WHEN "), expr)
		})
	}
}

func TestDateTimePattern(t *testing.T) {
	re := regexp.MustCompile(dateTimePattern)
	for _, s := range []string{"2024-03-09", "2024-03-09T17:45:00Z", "2024-03-09T17:45:00.123-05:00", "2024-03-09 17:45:00", "2024-03-09T17:45:00"} {
		assert.True(t, re.MatchString(s), s)
	}
	for _, s := range []string{"hello", "2024-13-01", "2024-03-09T25:00:00Z", "2024-03-09 17:45:00Z", "5"} {
		assert.False(t, re.MatchString(s), s)
	}
}

func TestAdvisoryKeyIsStable(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, advisoryKey(id), advisoryKey(id))
	assert.NotEqual(t, advisoryKey(id), advisoryKey(uuid.New()))
}

func TestSQLValuesFlattenTags(t *testing.T) {
	got := sqlValues(simplecms.KindTags, []simplecms.Value{simplecms.TagsValue("a"), simplecms.TagsValue("b", "c")})
	assert.Equal(t, []string{"a", "b", "c"}, got)

	ints := sqlValues(simplecms.KindInteger, []simplecms.Value{simplecms.IntValue(3)})
	assert.Equal(t, []int64{3}, ints)
}
