package records

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/agentstation/utc"
)

// Kind identifies the canonical type carried by a Value.
type Kind uint8

// Canonical value kinds. The zero Value is KindAbsent.
const (
	KindAbsent Kind = iota
	KindString
	KindNumber
	KindTimestamp
	KindEnum
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindTimestamp:
		return "timestamp"
	case KindEnum:
		return "enum"
	default:
		return "absent"
	}
}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "string":
		return KindString, true
	case "number":
		return KindNumber, true
	case "timestamp":
		return KindTimestamp, true
	case "enum":
		return KindEnum, true
	case "absent", "":
		return KindAbsent, true
	}
	return KindAbsent, false
}

// Value is a typed, immutable field value.
type Value struct {
	kind Kind
	str  string
	num  float64
	ts   utc.Time
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Enum returns an enum value holding its canonical member name.
func Enum(s string) Value { return Value{kind: KindEnum, str: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Timestamp returns a timestamp value.
func Timestamp(t utc.Time) Value { return Value{kind: KindTimestamp, ts: t} }

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v carries no value.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Text returns the string or enum payload.
func (v Value) Text() (string, bool) {
	if v.kind == KindString || v.kind == KindEnum {
		return v.str, true
	}
	return "", false
}

// Float returns the numeric payload.
func (v Value) Float() (float64, bool) {
	if v.kind == KindNumber {
		return v.num, true
	}
	return 0, false
}

// Time returns the timestamp payload.
func (v Value) Time() (utc.Time, bool) {
	if v.kind == KindTimestamp {
		return v.ts, true
	}
	return utc.Time{}, false
}

// Equal reports whether two values agree. Numbers agree when they differ by
// no more than epsilon; other kinds compare exactly.
func (v Value) Equal(o Value, epsilon float64) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		if v.num == o.num {
			return true
		}
		return math.Abs(v.num-o.num) <= epsilon
	case KindTimestamp:
		return v.ts.Time.Equal(o.ts.Time)
	case KindAbsent:
		return true
	default:
		return v.str == o.str
	}
}

// String renders the value for display and sheet cells.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindTimestamp:
		return v.ts.Time.UTC().Format(time.RFC3339)
	case KindAbsent:
		return ""
	default:
		return v.str
	}
}

// Interface returns the payload as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindTimestamp:
		return v.ts.Time.UTC().Format(time.RFC3339Nano)
	case KindAbsent:
		return nil
	default:
		return v.str
	}
}

type valueJSON struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

// MarshalJSON encodes the value with its kind so it round-trips through history.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindAbsent {
		return []byte("null"), nil
	}
	return json.Marshal(valueJSON{Kind: v.kind.String(), Value: v.Interface()})
}

// UnmarshalJSON decodes a value produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var raw struct {
		Kind  string          `json:"kind"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, ok := ParseKind(raw.Kind)
	if !ok {
		return fmt.Errorf("unknown value kind %q", raw.Kind)
	}
	switch kind {
	case KindNumber:
		var f float64
		if err := json.Unmarshal(raw.Value, &f); err != nil {
			return err
		}
		*v = Number(f)
	case KindTimestamp:
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*v = Timestamp(utc.New(t))
	case KindString, KindEnum:
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return err
		}
		*v = Value{kind: kind, str: s}
	default:
		*v = Value{}
	}
	return nil
}

// MarshalYAML renders the value as its plain payload.
func (v Value) MarshalYAML() (any, error) {
	return v.Interface(), nil
}
