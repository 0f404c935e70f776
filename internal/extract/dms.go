package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var dmsPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*deg\s*(\d+)'\s*([\d.]+)"?\s*([NSEW])?\s*$`)

// ParseDMS converts an exiftool degrees/minutes/seconds string such as
// `40 deg 26' 46.00" N` to signed decimal degrees rounded to six places.
// S and W negate. "-", empty and malformed input report ok=false.
func ParseDMS(s string) (float64, bool) {
	return parseDMS(s, "")
}

// parseDMS is ParseDMS with a fallback hemisphere reference for values that
// carry no direction letter of their own.
func parseDMS(s, ref string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, false
	}
	m := dmsPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	deg, err1 := strconv.ParseFloat(m[1], 64)
	mins, err2 := strconv.ParseFloat(m[2], 64)
	sec, err3 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	v := deg + mins/60 + sec/3600

	dir := strings.ToUpper(m[4])
	if dir == "" {
		dir = hemisphere(ref)
	}
	if dir == "S" || dir == "W" {
		v = -v
	}
	return Round(v, 6), true
}

// hemisphere normalizes GPS reference tags ("South", "W", ...) to one letter.
func hemisphere(ref string) string {
	ref = strings.ToUpper(strings.Trim(strings.TrimSpace(ref), "'\""))
	if ref == "" {
		return ""
	}
	return ref[:1]
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
