package timeutil

import (
	"strconv"
	"strings"
	"time"
)

// strftimeToGo maps the subset of strftime directives this system
// needs onto Go's reference-time layout. Unknown directives pass
// through the % sequence unchanged rather than failing, mirroring the
// lenient behavior of a text-templating origin system.
var strftimeToGo = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
	'Z': "Z0700",
	'z': "-0700",
	'T': "15:04:05",
	'F': "2006-01-02",
}

// Format renders t per the configured pattern. The sentinel `%s`
// (exact match, the whole pattern) means integer seconds-since-epoch
// and is special-cased ahead of strftime translation, per the open
// question recorded in spec.md §9 — feeding a literal "%s" into a
// strftime translator would otherwise collide with the seconds
// directive semantics of other libraries.
func Format(t time.Time, pattern string) string {
	if pattern == "%s" {
		return strconv.FormatInt(t.Unix(), 10)
	}
	return t.Format(toGoLayout(pattern))
}

// Parse parses s per the configured pattern, the inverse of Format.
func Parse(s, pattern string) (time.Time, error) {
	if pattern == "%s" {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Parse(toGoLayout(pattern), s)
}

func toGoLayout(pattern string) string {
	var sb strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '%' && i+1 < len(pattern) {
			if layout, ok := strftimeToGo[pattern[i+1]]; ok {
				sb.WriteString(layout)
				i++
				continue
			}
		}
		sb.WriteByte(pattern[i])
	}
	return sb.String()
}
