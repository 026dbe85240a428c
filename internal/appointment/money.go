package appointment

import (
	"fmt"
	"math"
	"strings"
)

type InvalidMoneyError struct {
	Reason string
}

func (e *InvalidMoneyError) Error() string {
	return fmt.Sprintf("invalid money value: %s", e.Reason)
}

// Money is a non-negative, currency-tagged amount held as integer cents.
// Rounding is half-away-from-zero at two decimals, applied on construction
// and after every arithmetic operation.
type Money struct {
	cents    int64
	currency string
}

func NewMoney(amount float64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, &InvalidMoneyError{Reason: "amount must not be negative"}
	}
	cur := strings.ToUpper(currency)
	if !isCurrencyCode(cur) {
		return Money{}, &InvalidMoneyError{Reason: fmt.Sprintf("currency %q must be a 3-letter code", currency)}
	}
	return Money{cents: roundToCents(amount), currency: cur}, nil
}

// moneyFromCents rehydrates an already-validated amount. Repository use only.
func moneyFromCents(cents int64, currency string) Money {
	return Money{cents: cents, currency: currency}
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func roundToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func (m Money) checkCurrency(other Money) error {
	if m.currency != other.currency {
		return &InvalidMoneyError{
			Reason: fmt.Sprintf("currency mismatch: %s vs %s", m.currency, other.currency),
		}
	}
	return nil
}

func (m Money) Add(other Money) (Money, error) {
	if err := m.checkCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{cents: m.cents + other.cents, currency: m.currency}, nil
}

func (m Money) Subtract(other Money) (Money, error) {
	if err := m.checkCurrency(other); err != nil {
		return Money{}, err
	}
	if other.cents > m.cents {
		return Money{}, &InvalidMoneyError{Reason: "subtraction would produce a negative amount"}
	}
	return Money{cents: m.cents - other.cents, currency: m.currency}, nil
}

func (m Money) MultiplyBy(factor float64) (Money, error) {
	if factor < 0 {
		return Money{}, &InvalidMoneyError{Reason: "factor must not be negative"}
	}
	return Money{cents: int64(math.Round(float64(m.cents) * factor)), currency: m.currency}, nil
}

func (m Money) LessThan(other Money) (bool, error) {
	if err := m.checkCurrency(other); err != nil {
		return false, err
	}
	return m.cents < other.cents, nil
}

func (m Money) GreaterThan(other Money) (bool, error) {
	if err := m.checkCurrency(other); err != nil {
		return false, err
	}
	return m.cents > other.cents, nil
}

func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.cents == other.cents
}

func (m Money) Amount() float64 { return float64(m.cents) / 100 }

func (m Money) Cents() int64 { return m.cents }

func (m Money) Currency() string { return m.currency }

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.cents/100, m.cents%100, m.currency)
}
