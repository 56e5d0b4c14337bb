package simplecms

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// FieldKind is the declared kind of a content type field. It is also the tag
// of every Value stored for that field.
type FieldKind string

// Field kinds.
const (
	KindString   FieldKind = "string"
	KindText     FieldKind = "text"
	KindEmail    FieldKind = "email"
	KindInteger  FieldKind = "integer"
	KindFloat    FieldKind = "float"
	KindBoolean  FieldKind = "boolean"
	KindDate     FieldKind = "date"
	KindDateTime FieldKind = "date_time"
	KindSelect   FieldKind = "select"
	KindTags     FieldKind = "tags"
)

// IsValid reports whether k is a known field kind.
func (k FieldKind) IsValid() bool {
	switch k {
	case KindString, KindText, KindEmail, KindInteger, KindFloat, KindBoolean,
		KindDate, KindDateTime, KindSelect, KindTags:
		return true
	}
	return false
}

// IsTextual reports whether values of kind k are carried as strings.
func (k FieldKind) IsTextual() bool {
	switch k {
	case KindString, KindText, KindEmail, KindSelect:
		return true
	}
	return false
}

// IsNumeric reports whether values of kind k are numbers.
func (k FieldKind) IsNumeric() bool {
	return k == KindInteger || k == KindFloat
}

const dateLayout = "2006-01-02"

// Value is a tagged union holding one field value. The zero Value is absent.
type Value struct {
	kind FieldKind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
	tags []string
}

// StringValue returns a string-kinded value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// TextValue returns a text-kinded value.
func TextValue(s string) Value { return Value{kind: KindText, s: s} }

// IntValue returns an integer-kinded value.
func IntValue(i int64) Value { return Value{kind: KindInteger, i: i} }

// FloatValue returns a float-kinded value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// BoolValue returns a boolean-kinded value.
func BoolValue(b bool) Value { return Value{kind: KindBoolean, b: b} }

// DateValue returns a date-kinded value holding the calendar day of t in its
// own location.
func DateValue(t time.Time) Value {
	return Value{kind: KindDate, t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// DateTimeValue returns a date_time-kinded value in UTC.
func DateTimeValue(t time.Time) Value { return Value{kind: KindDateTime, t: t.UTC()} }

// TagsValue returns a tags-kinded value.
func TagsValue(tags ...string) Value {
	return Value{kind: KindTags, tags: append([]string(nil), tags...)}
}

// Kind returns the value's tag; the empty kind means absent.
func (v Value) Kind() FieldKind { return v.kind }

// IsAbsent reports whether the value carries nothing.
func (v Value) IsAbsent() bool { return v.kind == "" }

// Str returns the string payload of textual kinds.
func (v Value) Str() string { return v.s }

// Int returns the integer payload.
func (v Value) Int() int64 { return v.i }

// Float returns the numeric payload as float64 for both numeric kinds.
func (v Value) Float() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.b }

// Time returns the payload of date and date_time kinds.
func (v Value) Time() time.Time { return v.t }

// Tags returns a copy of the tags payload.
func (v Value) Tags() []string { return append([]string(nil), v.tags...) }

func (v Value) clone() Value {
	if v.tags != nil {
		v.tags = append([]string(nil), v.tags...)
	}
	return v
}

// Interface returns the value in its natural JSON shape.
func (v Value) Interface() any {
	switch v.kind {
	case KindString, KindText, KindEmail, KindSelect:
		return v.s
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindBoolean:
		return v.b
	case KindDate:
		return v.t.Format(dateLayout)
	case KindDateTime:
		return v.t.Format(time.RFC3339Nano)
	case KindTags:
		if v.tags == nil {
			return []string{}
		}
		return v.Tags()
	}
	return nil
}

// String renders the value for logs and error messages.
func (v Value) String() string {
	switch v.kind {
	case "":
		return ""
	case KindTags:
		return strings.Join(v.tags, ",")
	}
	return fmt.Sprint(v.Interface())
}

// MarshalJSON encodes the natural JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Equal reports whether a and b hold the same kind and payload. Integer and
// float values compare numerically.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind && !(v.kind.IsNumeric() && o.kind.IsNumeric()) {
		return false
	}
	return Compare(v, o) == 0
}

// Compare orders two values. Absent values sort first; numbers compare across
// integer and float; values of unrelated kinds order by kind name.
func Compare(a, b Value) int {
	switch {
	case a.IsAbsent() && b.IsAbsent():
		return 0
	case a.IsAbsent():
		return -1
	case b.IsAbsent():
		return 1
	}
	if a.kind.IsNumeric() && b.kind.IsNumeric() {
		if a.kind == KindInteger && b.kind == KindInteger {
			return cmpOrdered(a.i, b.i)
		}
		return cmpOrdered(a.Float(), b.Float())
	}
	if a.kind.IsTextual() && b.kind.IsTextual() {
		return strings.Compare(a.s, b.s)
	}
	if a.kind != b.kind {
		return strings.Compare(string(a.kind), string(b.kind))
	}
	switch a.kind {
	case KindBoolean:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		}
		return 1
	case KindDate, KindDateTime:
		return a.t.Compare(b.t)
	case KindTags:
		return slices.Compare(a.tags, b.tags)
	}
	return 0
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

var valueValidator = validator.New()

// Coerce converts a loosely typed input (JSON-decoded value or request
// string) into a Value of the given kind. Nil and empty strings yield the
// absent value.
func Coerce(kind FieldKind, raw any) (Value, error) {
	if raw == nil {
		return Value{}, nil
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" && kind != KindText {
		return Value{}, nil
	}
	if v, ok := raw.(Value); ok {
		if v.IsAbsent() {
			return v, nil
		}
		raw = v.Interface()
	}

	switch kind {
	case KindString, KindText, KindSelect:
		s, err := coerceString(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: kind, s: s}, nil

	case KindEmail:
		s, err := coerceString(raw)
		if err != nil {
			return Value{}, err
		}
		s = strings.TrimSpace(s)
		if err := valueValidator.Var(s, "email"); err != nil {
			return Value{}, fmt.Errorf("%q is not a valid email", s)
		}
		return Value{kind: kind, s: s}, nil

	case KindInteger:
		i, err := coerceInt(raw)
		if err != nil {
			return Value{}, err
		}
		return IntValue(i), nil

	case KindFloat:
		f, err := coerceFloat(raw)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil

	case KindBoolean:
		switch b := raw.(type) {
		case bool:
			return BoolValue(b), nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return Value{}, fmt.Errorf("%q is not a boolean", b)
			}
			return BoolValue(parsed), nil
		}
		return Value{}, fmt.Errorf("%v is not a boolean", raw)

	case KindDate, KindDateTime:
		t, err := coerceTime(raw)
		if err != nil {
			return Value{}, err
		}
		if kind == KindDate {
			return DateValue(t), nil
		}
		return DateTimeValue(t), nil

	case KindTags:
		tags, err := coerceTags(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindTags, tags: tags}, nil
	}
	return Value{}, fmt.Errorf("unsupported field kind %q", kind)
}

func coerceString(raw any) (string, error) {
	switch s := raw.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case bool:
		return strconv.FormatBool(s), nil
	}
	return "", fmt.Errorf("%v is not a string", raw)
}

func coerceInt(raw any) (int64, error) {
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%v is not an integer", raw)
}

func coerceFloat(raw any) (float64, error) {
	f, err := parseFloat(raw)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", raw)
	}
	return f, nil
}

func parseFloat(raw any) (float64, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%v is not a number", raw)
}

func coerceTime(raw any) (time.Time, error) {
	switch t := raw.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", dateLayout} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("%q is not a date", t)
	}
	return time.Time{}, fmt.Errorf("%v is not a date", raw)
}

func coerceTags(raw any) ([]string, error) {
	var tags []string
	switch t := raw.(type) {
	case []string:
		tags = t
	case []any:
		for _, item := range t {
			s, err := coerceString(item)
			if err != nil {
				return nil, err
			}
			tags = append(tags, s)
		}
	case string:
		tags = strings.Split(t, ",")
	default:
		return nil, fmt.Errorf("%v is not a list of tags", raw)
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out, nil
}

// DecodeValues rebuilds typed values from their natural JSON shape using the
// content type's field definitions. Values of unknown fields, or values that no
// longer fit the field's current kind, are dropped.
func DecodeValues(ct *ContentType, raw map[string]any) map[string]Value {
	values := make(map[string]Value, len(raw))
	for _, f := range ct.Fields {
		r, ok := raw[f.Name]
		if !ok || !storedShapeFits(f.Kind, r) {
			continue
		}
		v, err := Coerce(f.Kind, r)
		if err != nil || v.IsAbsent() {
			continue
		}
		values[f.Name] = v
	}
	return values
}

// storedShapeFits reports whether a persisted JSON value can belong to kind.
// Stored strings are never read back as numbers, booleans or tags, and emails
// are read from strings only. The postgres repository filters with the same
// rules.
func storedShapeFits(kind FieldKind, raw any) bool {
	switch raw.(type) {
	case string:
		return kind.IsTextual() || kind == KindDate || kind == KindDateTime
	case float64, float32, int, int64, json.Number:
		return (kind.IsTextual() && kind != KindEmail) || kind.IsNumeric()
	case bool:
		return (kind.IsTextual() && kind != KindEmail) || kind == KindBoolean
	case []any, []string:
		return kind == KindTags
	}
	return false
}

// ReadEntry returns a copy of e whose values are decoded against the current
// definition of ct.
func ReadEntry(ct *ContentType, e *Entry) *Entry {
	out := e.Clone()
	out.Values = DecodeValues(ct, EncodeValues(e.Values))
	return out
}

// EncodeValues returns the natural JSON shape of values.
func EncodeValues(values map[string]Value) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if v.IsAbsent() {
			continue
		}
		out[k] = v.Interface()
	}
	return out
}
