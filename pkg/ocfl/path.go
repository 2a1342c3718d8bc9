package ocfl

import (
	"strings"
)

// ValidateLogicalPath enforces the logical-path rules: non-empty, no leading
// or trailing slash, no empty segments, no '.' or '..' segments.
func ValidateLogicalPath(path string) error {
	if path == "" {
		return invalidf("logical path is empty")
	}
	if strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return invalidf("logical path '%s' must not start or end with '/'", path)
	}
	for _, segment := range strings.Split(path, "/") {
		switch segment {
		case "":
			return invalidf("logical path '%s' contains an empty segment", path)
		case ".", "..":
			return invalidf("logical path '%s' contains an illegal segment '%s'", path, segment)
		}
	}
	return nil
}

// pathConflicts reports whether one path is a directory-prefix of the other,
// i.e. the same name cannot be both a file and a directory.
func pathConflicts(p1, p2 string) bool {
	if p1 == p2 {
		return true
	}
	return strings.HasPrefix(p2, p1+"/") || strings.HasPrefix(p1, p2+"/")
}

// NaturalLess compares strings by splitting them into alternating text and
// numeric runs, comparing numeric runs by value. "v2" sorts before "v10".
func NaturalLess(s1, s2 string) bool {
	for len(s1) > 0 && len(s2) > 0 {
		r1, isNum1, rest1 := nextRun(s1)
		r2, isNum2, rest2 := nextRun(s2)
		if isNum1 && isNum2 {
			n1 := strings.TrimLeft(r1, "0")
			n2 := strings.TrimLeft(r2, "0")
			if len(n1) != len(n2) {
				return len(n1) < len(n2)
			}
			if n1 != n2 {
				return n1 < n2
			}
		} else if r1 != r2 {
			return r1 < r2
		}
		s1, s2 = rest1, rest2
	}
	return len(s1) < len(s2)
}

func nextRun(s string) (run string, isNum bool, rest string) {
	isNum = s[0] >= '0' && s[0] <= '9'
	for i := 0; i < len(s); i++ {
		digit := s[i] >= '0' && s[i] <= '9'
		if digit != isNum {
			return s[:i], isNum, s[i:]
		}
	}
	return s, isNum, ""
}
