package collector

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	placeholder    = '?'
	timeLayoutSQL  = "2006-01-02 15:04:05"
	queryTerminate = ';'
)

// RenderQuery substitutes the positional parameters into a query template for
// display. Every literal '%' of the template is doubled, every '?' is
// replaced left to right by the next parameter in single quotes, and a ';' is
// appended. Percent signs inside parameter values are left alone.
//
// When the number of placeholders and parameters differ the template is
// returned unchanged together with an error wrapping ErrSubstitutionMismatch.
func RenderQuery(template string, params []any) (string, error) {
	if n := strings.Count(template, string(placeholder)); n != len(params) {
		return template, errors.Wrapf(ErrSubstitutionMismatch, "%d placeholders, %d parameters", n, len(params))
	}

	var b strings.Builder
	b.Grow(len(template) + 8*len(params) + 1)

	next := 0
	for i := 0; i < len(template); i++ {
		switch c := template[i]; c {
		case '%':
			b.WriteString("%%")
		case placeholder:
			b.WriteByte('\'')
			b.WriteString(formatValue(params[next]))
			b.WriteByte('\'')
			next++
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(queryTerminate)
	return b.String(), nil
}

// formatValue renders a bound parameter the way it is printed inside quotes.
func formatValue(v any) string {
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		v = dv
	}

	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "1"
		}
		return ""
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(timeLayoutSQL)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
