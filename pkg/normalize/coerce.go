package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/agentstation/utc"

	"github.com/agentstation/syncflow/pkg/records"
)

// timestampLayouts are tried in order when a mapping sets no layout.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// isBlank reports whether a raw value counts as absent.
func isBlank(raw any) bool {
	if raw == nil {
		return true
	}
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// coerce converts raw according to m. Blank input yields an absent value.
func coerce(raw any, m FieldMapping) (records.Value, error) {
	if isBlank(raw) {
		return records.Value{}, nil
	}

	switch m.Coerce {
	case CoerceString, "":
		return records.String(text(raw)), nil
	case CoerceNumber:
		f, err := toFloat(raw)
		if err != nil {
			return records.Value{}, err
		}
		return records.Number(f), nil
	case CoerceCurrency:
		f, err := currency(raw)
		if err != nil {
			return records.Value{}, err
		}
		return records.Number(f), nil
	case CoerceTimestamp:
		t, err := timestamp(raw, m.Layout)
		if err != nil {
			return records.Value{}, err
		}
		return records.Timestamp(t), nil
	case CoerceEnum:
		return enum(raw, m.Values)
	default:
		return records.Value{}, fmt.Errorf("unknown coercion %q", m.Coerce)
	}
}

func text(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", raw)
	}
}

// currency strips symbols, grouping separators, and spaces from a money string.
// Accounting negatives such as "(1,200.00)" are accepted.
func currency(raw any) (float64, error) {
	s, ok := raw.(string)
	if !ok {
		return toFloat(raw)
	}

	trimmed := strings.TrimSpace(s)
	negative := strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")")
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == '-' {
			return r
		}
		return -1
	}, trimmed)
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return 0, fmt.Errorf("%q is not a currency amount", s)
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a currency amount", s)
	}
	if negative {
		f = -f
	}
	return f, nil
}

func timestamp(raw any, layout string) (utc.Time, error) {
	switch v := raw.(type) {
	case utc.Time:
		return v, nil
	case time.Time:
		return utc.New(v), nil
	case string:
		s := strings.TrimSpace(v)
		if layout != "" {
			t, err := time.Parse(layout, s)
			if err != nil {
				return utc.Time{}, fmt.Errorf("%q does not match layout %q", s, layout)
			}
			return utc.New(t), nil
		}
		for _, l := range timestampLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return utc.New(t), nil
			}
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return utc.New(time.Unix(secs, 0)), nil
		}
		return utc.Time{}, fmt.Errorf("%q is not a recognized timestamp", s)
	default:
		// numeric input is unix seconds
		f, err := toFloat(raw)
		if err != nil {
			return utc.Time{}, fmt.Errorf("cannot convert %T to timestamp", raw)
		}
		return utc.New(time.Unix(int64(f), 0)), nil
	}
}

func enum(raw any, members []string) (records.Value, error) {
	s := text(raw)
	if len(members) == 0 {
		return records.Enum(s), nil
	}
	for _, m := range members {
		if strings.EqualFold(m, s) {
			return records.Enum(m), nil
		}
	}
	return records.Value{}, fmt.Errorf("%q is not one of %s", s, strings.Join(members, ", "))
}
