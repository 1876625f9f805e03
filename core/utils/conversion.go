package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateTimeLayout is the textual form of SQL DATETIME values.
const DateTimeLayout = "2006-01-02 15:04:05"

// ZeroDateTime is the MySQL zero date, read back as the zero time.Time.
const ZeroDateTime = "0000-00-00 00:00:00"

// ToInt64 converts database values to int64 using explicit type switching.
// It handles standard integer types, floats, strings, and byte slices.
// Values that are not numeric yield 0.
func ToInt64(val any) int64 {
	switch v := val.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	case uint:
		return int64(v)
	case uint64:
		return int64(v)
	case uint32:
		return int64(v)
	case uint16:
		return int64(v)
	case uint8:
		return int64(v)
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case string:
		i, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i
	case []byte:
		i, _ := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		return i
	default:
		return 0
	}
}

// ToString converts database values to their textual storage form.
// nil becomes "", floats are printed without exponent and times use
// DateTimeLayout.
func ToString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		if v.IsZero() {
			return ZeroDateTime
		}
		return v.Format(DateTimeLayout)
	default:
		return fmt.Sprintf("%v", v)
	}
}
