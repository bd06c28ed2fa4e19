// Package ordering generates fractional index keys for playlist positions.
//
// A key is a base-62 string compared lexicographically, built from a
// variable-length integer part (head byte encodes the length, "a0" is zero)
// and an optional fractional part. [Between] returns a key strictly between
// two existing keys without touching any sibling row, so reordering one track
// is always a single-row write. Inserting repeatedly at either end increments
// or decrements the integer part, keeping key growth logarithmic instead of
// one byte per insert.
package ordering

import (
	"fmt"
	"strings"

	"github.com/desertthunder/synclist/internal/shared"
)

// digits is the sort alphabet, ordered by byte value so string comparison
// and digit comparison agree.
const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// smallestInteger is the minimum representable integer part. No key may sort
// at or below it, so there is always room to decrement.
const smallestInteger = "A00000000000000000000000000"

// First returns the key for the initial element of an empty list.
func First() string {
	return "a0"
}

// Between returns a key lexicographically greater than prev and less than
// next. An empty prev means "before everything"; an empty next means "after
// everything". Both empty yields [First].
func Between(prev, next string) (string, error) {
	if prev != "" {
		if err := validateKey(prev); err != nil {
			return "", err
		}
	}
	if next != "" {
		if err := validateKey(next); err != nil {
			return "", err
		}
	}
	if prev != "" && next != "" && prev >= next {
		return "", fmt.Errorf("%w: prev key %q is not before next key %q", shared.ErrInvalidInput, prev, next)
	}

	if prev == "" {
		if next == "" {
			return First(), nil
		}
		return before(next)
	}
	if next == "" {
		return after(prev)
	}

	intPrev, fracPrev, err := splitKey(prev)
	if err != nil {
		return "", err
	}
	intNext, fracNext, err := splitKey(next)
	if err != nil {
		return "", err
	}
	if intPrev == intNext {
		return intPrev + midpoint(fracPrev, fracNext), nil
	}

	incremented, err := incrementInteger(intPrev)
	if err != nil {
		return "", err
	}
	if incremented != "" && incremented < next {
		return incremented, nil
	}
	return intPrev + midpoint(fracPrev, ""), nil
}

// before returns a key sorting before every existing key up to next.
func before(next string) (string, error) {
	intNext, fracNext, err := splitKey(next)
	if err != nil {
		return "", err
	}
	if intNext == smallestInteger {
		return intNext + midpoint("", fracNext), nil
	}
	if fracNext != "" {
		// The bare integer part already sorts before next.
		return intNext, nil
	}
	decremented, err := decrementInteger(intNext)
	if err != nil {
		return "", err
	}
	if decremented == "" {
		return "", fmt.Errorf("%w: no key available before %q", shared.ErrInvalidInput, next)
	}
	return decremented, nil
}

// after returns a key sorting after every existing key from prev on.
func after(prev string) (string, error) {
	intPrev, fracPrev, err := splitKey(prev)
	if err != nil {
		return "", err
	}
	incremented, err := incrementInteger(intPrev)
	if err != nil {
		return "", err
	}
	if incremented == "" {
		// Integer space exhausted at the top; extend the fraction instead.
		return intPrev + midpoint(fracPrev, ""), nil
	}
	return incremented, nil
}

// integerLength maps a head byte to the total length of the integer part it
// introduces: 'a'..'z' are positive with 1..26 trailing digits, 'A'..'Z' are
// negative with 26..1.
func integerLength(head byte) (int, error) {
	switch {
	case head >= 'a' && head <= 'z':
		return int(head-'a') + 2, nil
	case head >= 'A' && head <= 'Z':
		return int('Z'-head) + 2, nil
	default:
		return 0, fmt.Errorf("%w: invalid order key head %q", shared.ErrInvalidInput, head)
	}
}

// splitKey separates a key into its integer and fractional parts.
func splitKey(key string) (string, string, error) {
	if key == "" {
		return "", "", fmt.Errorf("%w: empty order key", shared.ErrInvalidInput)
	}
	n, err := integerLength(key[0])
	if err != nil {
		return "", "", err
	}
	if n > len(key) {
		return "", "", fmt.Errorf("%w: order key %q is shorter than its integer part", shared.ErrInvalidInput, key)
	}
	return key[:n], key[n:], nil
}

// validateKey rejects malformed keys: bytes outside the alphabet, a
// fractional part ending in the smallest digit (no room below it), or the
// smallest representable integer.
func validateKey(key string) error {
	intPart, fracPart, err := splitKey(key)
	if err != nil {
		return err
	}
	for i := 1; i < len(intPart); i++ {
		if strings.IndexByte(digits, intPart[i]) < 0 {
			return fmt.Errorf("%w: order key %q contains invalid byte %q", shared.ErrInvalidInput, key, intPart[i])
		}
	}
	for i := 0; i < len(fracPart); i++ {
		if strings.IndexByte(digits, fracPart[i]) < 0 {
			return fmt.Errorf("%w: order key %q contains invalid byte %q", shared.ErrInvalidInput, key, fracPart[i])
		}
	}
	if strings.HasSuffix(fracPart, string(digits[0])) {
		return fmt.Errorf("%w: order key %q has a fractional part ending in the smallest digit", shared.ErrInvalidInput, key)
	}
	if key == smallestInteger {
		return fmt.Errorf("%w: order key %q is the smallest representable key", shared.ErrInvalidInput, key)
	}
	return nil
}

// incrementInteger returns the next integer part, lengthening when the head
// overflows. Returns "" when the integer space is exhausted at the top.
func incrementInteger(x string) (string, error) {
	head := x[0]
	digs := []byte(x[1:])

	carry := true
	for i := len(digs) - 1; carry && i >= 0; i-- {
		d := strings.IndexByte(digits, digs[i]) + 1
		if d == len(digits) {
			digs[i] = digits[0]
		} else {
			digs[i] = digits[d]
			carry = false
		}
	}

	if carry {
		if head == 'Z' {
			return "a0", nil
		}
		if head == 'z' {
			return "", nil
		}
		next := head + 1
		if next > 'a' {
			digs = append(digs, digits[0])
		} else {
			digs = digs[:len(digs)-1]
		}
		return string(next) + string(digs), nil
	}
	return string(head) + string(digs), nil
}

// decrementInteger returns the previous integer part, lengthening when the
// head underflows. Returns "" when the integer space is exhausted at the
// bottom.
func decrementInteger(x string) (string, error) {
	head := x[0]
	digs := []byte(x[1:])

	borrow := true
	for i := len(digs) - 1; borrow && i >= 0; i-- {
		d := strings.IndexByte(digits, digs[i]) - 1
		if d < 0 {
			digs[i] = digits[len(digits)-1]
		} else {
			digs[i] = digits[d]
			borrow = false
		}
	}

	if borrow {
		if head == 'a' {
			return "Z" + string(digits[len(digits)-1]), nil
		}
		if head == 'A' {
			return "", nil
		}
		next := head - 1
		if next < 'Z' {
			digs = append(digs, digits[len(digits)-1])
		} else {
			digs = digs[:len(digs)-1]
		}
		return string(next) + string(digs), nil
	}
	return string(head) + string(digs), nil
}

// midpoint returns the shortest fraction strictly between a and b, where an
// empty b means an open upper bound. Preconditions: a < b when b is
// non-empty, and neither ends in the smallest digit.
func midpoint(a, b string) string {
	if b != "" {
		// Consume the longest shared prefix, treating a as zero-padded.
		n := 0
		for n < len(b) {
			ca := digits[0]
			if n < len(a) {
				ca = a[n]
			}
			if ca != b[n] {
				break
			}
			n++
		}
		if n > 0 {
			rest := ""
			if n < len(a) {
				rest = a[n:]
			}
			return b[:n] + midpoint(rest, b[n:])
		}
	}

	digitA := 0
	if a != "" {
		digitA = strings.IndexByte(digits, a[0])
	}
	digitB := len(digits)
	if b != "" {
		digitB = strings.IndexByte(digits, b[0])
	}

	if digitB-digitA > 1 {
		mid := (digitA + digitB + 1) / 2
		return string(digits[mid])
	}

	// Consecutive first digits: no room at this position.
	if len(b) > 1 {
		// b's first digit alone is already strictly between, since b extends it.
		return b[:1]
	}

	rest := ""
	if a != "" {
		rest = a[1:]
	}
	return string(digits[digitA]) + midpoint(rest, "")
}
