package orderrecord

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006",
}

func firstValue(rec Record, keys ...string) (any, bool) {
	for _, key := range keys {
		value, ok := rec[key]
		if !ok || value == nil {
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return value, true
	}
	return nil, false
}

func firstString(rec Record, keys ...string) string {
	value, ok := firstValue(rec, keys...)
	if !ok {
		return ""
	}
	return toString(value)
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// parseMoney accepts numbers or strings such as "$1,250.50".
func parseMoney(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		cleaned := strings.TrimSpace(v)
		cleaned = strings.NewReplacer("$", "", ",", "", " ", "").Replace(cleaned)
		if cleaned == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(cleaned)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func moneyField(rec Record, keys ...string) decimal.Decimal {
	value, ok := firstValue(rec, keys...)
	if !ok {
		return decimal.Zero
	}
	d, ok := parseMoney(value)
	if !ok {
		return decimal.Zero
	}
	return d.Round(2)
}

func optionalDecimal(value any) *decimal.Decimal {
	d, ok := parseMoney(value)
	if !ok || !d.IsPositive() {
		return nil
	}
	return &d
}

func parseInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			return int(f), ferr == nil
		}
		return int(i), true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		if i, err := strconv.Atoi(trimmed); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return int(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func parseBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1", "y":
			return true
		}
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

func parseTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func timeField(rec Record, keys ...string) time.Time {
	value, ok := firstValue(rec, keys...)
	if !ok {
		return time.Time{}
	}
	t, _ := parseTime(value)
	return t
}

func optionalTime(rec Record, keys ...string) *time.Time {
	t := timeField(rec, keys...)
	if t.IsZero() {
		return nil
	}
	return &t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func moneyValue(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func asMap(value any) (Record, bool) {
	switch v := value.(type) {
	case map[string]any:
		return Record(v), true
	case Record:
		return v, true
	case string:
		trimmed := strings.TrimSpace(v)
		if !strings.HasPrefix(trimmed, "{") {
			return nil, false
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return nil, false
		}
		return Record(decoded), true
	default:
		return nil, false
	}
}
