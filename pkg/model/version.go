package model

import (
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// CompareVersions orders two upstream version strings: it returns -1, 0 or 1.
//
// Versions which both parse as semantic-ish versions are compared with go-version.
// Distribution versions which don't (e.g. "1.2_p3", "2023.01.a") fall back to a segment-wise
// natural ordering: digit runs compare numerically, letter runs lexically, and a digit run
// sorts after a letter run.
func CompareVersions(a, b string) int {
	if a == b {
		return 0
	}
	va, errA := goversion.NewVersion(a)
	vb, errB := goversion.NewVersion(b)
	if errA == nil && errB == nil {
		if c := va.Compare(vb); c != 0 {
			return c
		}
		// go-version considers 1.2 and 1.2.0 equal: keep a total order on the raw strings
		return naturalCompare(a, b)
	}
	return naturalCompare(a, b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func naturalCompare(a, b string) int {
	i, j := 0, 0
	for {
		for i < len(a) && !isDigit(a[i]) && !isAlpha(a[i]) {
			i++
		}
		for j < len(b) && !isDigit(b[j]) && !isAlpha(b[j]) {
			j++
		}
		if i >= len(a) || j >= len(b) {
			break
		}

		numeric := isDigit(a[i])
		if numeric != isDigit(b[j]) {
			if numeric {
				return 1
			}
			return -1
		}

		si, sj := i, j
		if numeric {
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			x := strings.TrimLeft(a[si:i], "0")
			y := strings.TrimLeft(b[sj:j], "0")
			if len(x) != len(y) {
				if len(x) > len(y) {
					return 1
				}
				return -1
			}
			if c := strings.Compare(x, y); c != 0 {
				return c
			}
			continue
		}

		for i < len(a) && isAlpha(a[i]) {
			i++
		}
		for j < len(b) && isAlpha(b[j]) {
			j++
		}
		if c := strings.Compare(a[si:i], b[sj:j]); c != 0 {
			return c
		}
	}

	switch {
	case i >= len(a) && j >= len(b):
		return strings.Compare(a, b)
	case i >= len(a):
		return -1
	default:
		return 1
	}
}
