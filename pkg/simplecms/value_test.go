package simplecms

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		kind    FieldKind
		raw     any
		want    Value
		wantErr bool
	}{
		{name: "nil is absent", kind: KindString, raw: nil, want: Value{}},
		{name: "blank string is absent", kind: KindInteger, raw: "  ", want: Value{}},
		{name: "blank text is kept", kind: KindText, raw: " ", want: TextValue(" ")},
		{name: "string from number", kind: KindString, raw: json.Number("12"), want: StringValue("12")},
		{name: "integer from string", kind: KindInteger, raw: " 42 ", want: IntValue(42)},
		{name: "integer from whole float", kind: KindInteger, raw: 3.0, want: IntValue(3)},
		{name: "integer rejects fraction", kind: KindInteger, raw: 3.5, wantErr: true},
		{name: "integer rejects words", kind: KindInteger, raw: "many", wantErr: true},
		{name: "float from json number", kind: KindFloat, raw: json.Number("1.25"), want: FloatValue(1.25)},
		{name: "float from int", kind: KindFloat, raw: 2, want: FloatValue(2)},
		{name: "float rejects NaN", kind: KindFloat, raw: "NaN", wantErr: true},
		{name: "float rejects infinity", kind: KindFloat, raw: "-Inf", wantErr: true},
		{name: "float rejects infinite json number", kind: KindFloat, raw: json.Number("1e400"), wantErr: true},
		{name: "boolean from string", kind: KindBoolean, raw: "true", want: BoolValue(true)},
		{name: "boolean rejects words", kind: KindBoolean, raw: "yes please", wantErr: true},
		{name: "date drops time of day", kind: KindDate, raw: "2024-03-09T17:45:00Z", want: DateValue(day)},
		{name: "date keeps the day of its offset", kind: KindDate, raw: "2024-03-09T23:00:00-05:00", want: DateValue(day)},
		{name: "date rejects junk", kind: KindDate, raw: "tomorrow", wantErr: true},
		{name: "email", kind: KindEmail, raw: " jane@example.com ", want: Value{kind: KindEmail, s: "jane@example.com"}},
		{name: "email rejects junk", kind: KindEmail, raw: "jane", wantErr: true},
		{name: "tags from list", kind: KindTags, raw: []any{"a", " b ", ""}, want: TagsValue("a", "b")},
		{name: "tags from csv", kind: KindTags, raw: "a, b", want: TagsValue("a", "b")},
		{name: "tags reject objects", kind: KindTags, raw: map[string]any{}, wantErr: true},
		{name: "unknown kind", kind: FieldKind("blob"), raw: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.kind, tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v (%s), got %v (%s)", tt.want, tt.want.Kind(), got, got.Kind())
		})
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(Value{}, IntValue(0)), "absent sorts first")
	assert.Equal(t, 1, Compare(StringValue(""), Value{}))
	assert.Equal(t, 0, Compare(Value{}, Value{}))
	assert.Equal(t, 0, Compare(IntValue(2), FloatValue(2)))
	assert.Equal(t, -1, Compare(IntValue(2), FloatValue(2.5)))
	assert.Equal(t, -1, Compare(StringValue("a"), TextValue("b")))
	assert.Equal(t, -1, Compare(BoolValue(false), BoolValue(true)))
	assert.Equal(t, 1, Compare(DateTimeValue(time.Unix(10, 0)), DateTimeValue(time.Unix(5, 0))))
}

func TestValueEqual(t *testing.T) {
	assert.True(t, IntValue(3).Equal(FloatValue(3)))
	assert.False(t, StringValue("3").Equal(IntValue(3)))
	assert.True(t, Value{}.Equal(Value{}))
	assert.False(t, Value{}.Equal(StringValue("")))
}

func TestDecodeValuesDropsStaleValues(t *testing.T) {
	ct := &ContentType{Fields: []FieldDef{
		{Name: "title", Kind: KindString},
		{Name: "stock", Kind: KindInteger},
	}}
	values := DecodeValues(ct, map[string]any{
		"title":   "Hat",
		"stock":   "plenty",
		"removed": "gone",
	})
	assert.Len(t, values, 1)
	assert.Equal(t, "Hat", values["title"].Str())
}

func TestEntryMarshalJSON(t *testing.T) {
	e := &Entry{
		Permalink: "hat",
		Position:  3,
		Values:    map[string]Value{"title": StringValue("Hat"), "tags": TagsValue("a")},
	}
	b, err := json.Marshal(e)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "Hat", out["title"])
	assert.Equal(t, "hat", out["_slug"])
	assert.EqualValues(t, 3, out["_position"])
	assert.Equal(t, []any{"a"}, out["tags"])
}
