package ocfl

import (
	"fmt"
	"regexp"
	"strconv"
)

// VersionNum is a version number with its zero-padding width. Padding is
// fixed at object creation; width 0 means unpadded (v1, v2, ...).
type VersionNum struct {
	Num     int
	Padding int
}

var versionPaddedRegexp = regexp.MustCompile(`^v0\d+$`)
var versionUnpaddedRegexp = regexp.MustCompile(`^v[1-9]\d*$`)

// ParseVersionNum parses a version directory name such as "v3" or "v0042".
func ParseVersionNum(name string) (VersionNum, error) {
	padding := 0
	switch {
	case versionUnpaddedRegexp.MatchString(name):
	case versionPaddedRegexp.MatchString(name):
		padding = len(name) - 1
	default:
		return VersionNum{}, invalidf("invalid version number '%s'", name)
	}
	num, err := strconv.Atoi(name[1:])
	if err != nil || num < 1 {
		return VersionNum{}, invalidf("invalid version number '%s'", name)
	}
	return VersionNum{Num: num, Padding: padding}, nil
}

func (v VersionNum) String() string {
	if v.Padding <= 0 {
		return fmt.Sprintf("v%d", v.Num)
	}
	return fmt.Sprintf("v%0*d", v.Padding, v.Num)
}

func (v VersionNum) IsZero() bool {
	return v.Num == 0
}

func (v VersionNum) Next() VersionNum {
	return VersionNum{Num: v.Num + 1, Padding: v.Padding}
}

func (v VersionNum) Previous() VersionNum {
	return VersionNum{Num: v.Num - 1, Padding: v.Padding}
}
