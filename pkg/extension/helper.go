package extension

import "fmt"

// escape percent-encodes everything outside [A-Za-z0-9_-], producing a single
// filesystem-safe path segment. This is the encoding defined by the
// 0003-hash-and-id-n-tuple extension.
func escape(str string) string {
	var result = []byte{}
	for _, c := range []byte(str) {
		if 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' || c == '-' || c == '_' {
			result = append(result, c)
			continue
		}
		result = append(result, '%')
		result = append(result, fmt.Sprintf("%02x", c)...)
	}
	return string(result)
}

func reverse(s string) string {
	rns := []rune(s)
	for i, j := 0, len(rns)-1; i < j; i, j = i+1, j-1 {
		rns[i], rns[j] = rns[j], rns[i]
	}
	return string(rns)
}
