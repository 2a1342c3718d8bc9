package ocfl

import "testing"

func TestParseVersionNum(t *testing.T) {
	tests := []struct {
		name    string
		num     int
		padding int
		ok      bool
	}{
		{"v1", 1, 0, true},
		{"v10", 10, 0, true},
		{"v0001", 1, 4, true},
		{"v042", 42, 3, true},
		{"v0", 0, 0, false},
		{"1", 0, 0, false},
		{"v01x", 0, 0, false},
		{"v-1", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, test := range tests {
		num, err := ParseVersionNum(test.name)
		if test.ok != (err == nil) {
			t.Errorf("ParseVersionNum(%q): err=%v, want ok=%v", test.name, err, test.ok)
			continue
		}
		if !test.ok {
			continue
		}
		if num.Num != test.num || num.Padding != test.padding {
			t.Errorf("ParseVersionNum(%q) = %+v, want num=%d padding=%d", test.name, num, test.num, test.padding)
		}
		if num.String() != test.name {
			t.Errorf("%q did not round-trip: got %q", test.name, num.String())
		}
	}
}

func TestVersionNumNext(t *testing.T) {
	num := VersionNum{Num: 9, Padding: 4}
	if next := num.Next(); next.String() != "v0010" {
		t.Errorf("next of v0009 = %s", next)
	}
	num = VersionNum{Num: 2}
	if prev := num.Previous(); prev.String() != "v1" {
		t.Errorf("previous of v2 = %s", prev)
	}
}
