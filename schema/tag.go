package schema

import "strings"

// MatchTag reports whether tag satisfies pattern. Patterns are exact tag URIs
// or URIs ending in "*" (for example tag:stsci.edu:asdf/time/time-1.*).
func MatchTag(pattern, tag string) bool {
	if pattern == "" || tag == "" {
		return false
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(tag, prefix)
	}
	return pattern == tag
}

// SplitVersion splits "name-1.2.0" into ("name", "1.2.0"). URIs without a
// version suffix return an empty version.
func SplitVersion(uri string) (base, version string) {
	i := strings.LastIndexByte(uri, '-')
	if i < 0 || i == len(uri)-1 {
		return uri, ""
	}
	v := uri[i+1:]
	if v[0] < '0' || v[0] > '9' {
		return uri, ""
	}
	return uri[:i], v
}

// CompareVersions orders dotted numeric versions; non-numeric parts compare
// lexically.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < max(len(as), len(bs)); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if c := compareNumeric(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func compareNumeric(x, y string) int {
	if len(x) != len(y) && isDigits(x) && isDigits(y) {
		if len(x) < len(y) {
			return -1
		}
		return 1
	}
	return strings.Compare(x, y)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
