package money

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Money
// ============================================================================
//
// Fixed-point currency amount stored as an int64 count of copper, the smallest
// denomination. No floating point is used anywhere in the ledger.
//
// Denominations:
//   1 platinum (p) = 100 gold
//   1 gold     (g) = 100 silver
//   1 silver   (s) = 100 copper
//   1 copper   (c) = base unit
//
// The textual grammar is a compact run of unit-suffixed integers, e.g.
// "1p50c", "30g99s", "-2s50c". A bare integer with no suffix is copper.

type Money int64

const (
	Copper   Money = 1
	Silver   Money = 100 * Copper
	Gold     Money = 100 * Silver
	Platinum Money = 100 * Gold
)

var (
	// ErrFormat reports an unparseable money string.
	ErrFormat = errors.New("money: invalid format")
	// ErrOverflow reports that a parse or arithmetic result does not fit in int64.
	ErrOverflow = errors.New("money: amount overflows")
)

var unitValues = map[byte]Money{
	'p': Platinum,
	'g': Gold,
	's': Silver,
	'c': Copper,
}

// Parse converts a unit-suffixed money string into a Money value.
//
// Each unit may appear at most once. A leading '-' negates the whole amount.
// An empty string, an unknown suffix or a value outside the int64 range fails
// with ErrFormat or ErrOverflow.
func Parse(s string) (Money, error) {
	input := strings.TrimSpace(strings.ToLower(s))
	if input == "" {
		return 0, fmt.Errorf("%w: empty input", ErrFormat)
	}

	negative := false
	if input[0] == '-' {
		negative = true
		input = input[1:]
		if input == "" {
			return 0, fmt.Errorf("%w: %q", ErrFormat, s)
		}
	}

	var total Money
	seen := make(map[byte]bool, len(unitValues))
	digits := 0
	var value int64

	flush := func(unit byte) error {
		if digits == 0 {
			return fmt.Errorf("%w: missing digits before %q in %q", ErrFormat, string(unit), s)
		}
		if seen[unit] {
			return fmt.Errorf("%w: duplicate unit %q in %q", ErrFormat, string(unit), s)
		}
		seen[unit] = true

		part, err := mulInt64(value, int64(unitValues[unit]))
		if err != nil {
			return fmt.Errorf("%w: %q", ErrOverflow, s)
		}
		sum, err := addInt64(int64(total), part)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrOverflow, s)
		}
		total = Money(sum)
		value = 0
		digits = 0
		return nil
	}

	for i := 0; i < len(input); i++ {
		ch := input[i]
		switch {
		case ch >= '0' && ch <= '9':
			digits++
			next, err := mulInt64(value, 10)
			if err != nil {
				return 0, fmt.Errorf("%w: %q", ErrOverflow, s)
			}
			next, err = addInt64(next, int64(ch-'0'))
			if err != nil {
				return 0, fmt.Errorf("%w: %q", ErrOverflow, s)
			}
			value = next
		default:
			if _, ok := unitValues[ch]; !ok {
				return 0, fmt.Errorf("%w: unknown suffix %q in %q", ErrFormat, string(ch), s)
			}
			if err := flush(ch); err != nil {
				return 0, err
			}
		}
	}

	// Trailing bare digits count as copper.
	if digits > 0 {
		if err := flush('c'); err != nil {
			return 0, err
		}
	}

	if negative {
		total = -total
	}
	return total, nil
}

// MustParse is Parse for trusted constants, panicking on error.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// String renders the canonical compact form: largest unit first, zero units
// omitted, "0c" for a zero amount.
func (m Money) String() string {
	if m == 0 {
		return "0c"
	}
	if m < 0 {
		return "-" + (-m).stringMagnitude()
	}
	return m.stringMagnitude()
}

func (m Money) stringMagnitude() string {
	var b strings.Builder
	v := int64(m)

	units := []struct {
		value  int64
		suffix byte
	}{
		{int64(Platinum), 'p'},
		{int64(Gold), 'g'},
		{int64(Silver), 's'},
		{int64(Copper), 'c'},
	}
	for _, u := range units {
		if n := v / u.value; n > 0 {
			fmt.Fprintf(&b, "%d%c", n, u.suffix)
			v -= n * u.value
		}
	}
	return b.String()
}

// Add returns m+other, failing with ErrOverflow rather than wrapping.
func (m Money) Add(other Money) (Money, error) {
	sum, err := addInt64(int64(m), int64(other))
	if err != nil {
		return 0, err
	}
	return Money(sum), nil
}

// Sub returns m-other, failing with ErrOverflow rather than wrapping.
func (m Money) Sub(other Money) (Money, error) {
	if other == Money(minInt64()) {
		return 0, ErrOverflow
	}
	return m.Add(-other)
}

func (m Money) IsZero() bool     { return m == 0 }
func (m Money) IsNegative() bool { return m < 0 }
func (m Money) IsPositive() bool { return m > 0 }

// Compare returns -1, 0 or 1 ordering m against other.
func (m Money) Compare(other Money) int {
	switch {
	case m < other:
		return -1
	case m > other:
		return 1
	default:
		return 0
	}
}

func minInt64() int64 {
	return -1 << 63
}

func addInt64(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrOverflow
	}
	return sum, nil
}

func mulInt64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/b != a {
		return 0, ErrOverflow
	}
	return product, nil
}
