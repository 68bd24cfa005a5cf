package nanotime

import (
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/yanun0323/errors"
)

// DefaultFormat renders "2006-01-02 15:04:05.000000000".
const DefaultFormat = "%F %T.%N"

var ErrBadTimeString = stderrors.New("nanotime: time string does not match format")

// Strftime renders t (local time) with strftime directives %Y %m %d %H %M %S
// %F %T %N and %%. %N is the nanosecond part padded to 9 digits.
func Strftime(t int64, format string) string {
	if format == "" {
		format = DefaultFormat
	}
	tm := time.Unix(0, t).In(time.Local)
	format = expand(format)

	var sb strings.Builder
	sb.Grow(len(format) + 16)
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch format[i] {
		case 'Y':
			pad(&sb, tm.Year(), 4)
		case 'm':
			pad(&sb, int(tm.Month()), 2)
		case 'd':
			pad(&sb, tm.Day(), 2)
		case 'H':
			pad(&sb, tm.Hour(), 2)
		case 'M':
			pad(&sb, tm.Minute(), 2)
		case 'S':
			pad(&sb, tm.Second(), 2)
		case 'N':
			pad(&sb, tm.Nanosecond(), 9)
		case '%':
			sb.WriteByte('%')
		default:
			sb.WriteByte('%')
			sb.WriteByte(format[i])
		}
	}
	return sb.String()
}

// Strfnow renders Now with format.
func Strfnow(format string) string {
	return Strftime(Now(), format)
}

// Strptime parses text written by Strftime with the same format back into
// nanoseconds. Fields missing from the format default to zero (year 1970,
// month and day 1).
func Strptime(text, format string) (int64, error) {
	if format == "" {
		format = DefaultFormat
	}
	format = expand(format)

	year, month, day := 1970, 1, 1
	var hour, minute, sec, nsec int
	pos := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			if pos >= len(text) || text[pos] != c {
				return 0, errors.Wrapf(ErrBadTimeString, "literal %q at %d", c, pos)
			}
			pos++
			continue
		}
		i++
		var (
			width  int
			target *int
		)
		switch format[i] {
		case 'Y':
			width, target = 4, &year
		case 'm':
			width, target = 2, &month
		case 'd':
			width, target = 2, &day
		case 'H':
			width, target = 2, &hour
		case 'M':
			width, target = 2, &minute
		case 'S':
			width, target = 2, &sec
		case 'N':
			width, target = 9, &nsec
		case '%':
			if pos >= len(text) || text[pos] != '%' {
				return 0, errors.Wrapf(ErrBadTimeString, "literal %% at %d", pos)
			}
			pos++
			continue
		default:
			return 0, errors.Wrapf(ErrBadTimeString, "unsupported directive %%%c", format[i])
		}
		if pos+width > len(text) {
			return 0, errors.Wrapf(ErrBadTimeString, "short field %%%c", format[i])
		}
		v, err := strconv.Atoi(text[pos : pos+width])
		if err != nil {
			return 0, errors.Wrapf(ErrBadTimeString, "field %%%c: %v", format[i], err)
		}
		*target = v
		pos += width
	}
	if pos != len(text) {
		return 0, errors.Wrapf(ErrBadTimeString, "trailing input %q", text[pos:])
	}
	return time.Date(year, time.Month(month), day, hour, minute, sec, nsec, time.Local).UnixNano(), nil
}

func expand(format string) string {
	if !strings.Contains(format, "%F") && !strings.Contains(format, "%T") {
		return format
	}
	return strings.NewReplacer("%F", "%Y-%m-%d", "%T", "%H:%M:%S").Replace(format)
}

func pad(sb *strings.Builder, v, width int) {
	s := strconv.Itoa(v)
	for i := len(s); i < width; i++ {
		sb.WriteByte('0')
	}
	sb.WriteString(s)
}
