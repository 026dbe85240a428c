package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewMoney(t *testing.T) {
	m, err := NewMoney(150.50, "usd")
	require.NoError(t, err)
	assert.Equal(t, int64(15050), m.Cents())
	assert.Equal(t, "USD", m.Currency(), "currency is normalized to upper case")

	_, err = NewMoney(-1, "USD")
	var moneyErr *InvalidMoneyError
	assert.ErrorAs(t, err, &moneyErr)

	for _, cur := range []string{"", "US", "USDX", "U$D", "123"} {
		_, err := NewMoney(10, cur)
		assert.ErrorAs(t, err, &moneyErr, "currency %q", cur)
	}
}

func TestMoney_RoundsAwayFromZero(t *testing.T) {
	// 0.125 is exactly representable, so the rounding mode is observable.
	m, err := NewMoney(0.125, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(13), m.Cents())

	m, err = NewMoney(10.10, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(1010), m.Cents())
}

func TestMoney_CurrencyMismatch(t *testing.T) {
	usd, _ := NewMoney(10, "USD")
	eur, _ := NewMoney(10, "EUR")

	var moneyErr *InvalidMoneyError

	_, err := usd.Add(eur)
	assert.ErrorAs(t, err, &moneyErr)

	_, err = usd.Subtract(eur)
	assert.ErrorAs(t, err, &moneyErr)

	_, err = usd.LessThan(eur)
	assert.ErrorAs(t, err, &moneyErr)

	_, err = usd.GreaterThan(eur)
	assert.ErrorAs(t, err, &moneyErr)
}

func TestMoney_Arithmetic(t *testing.T) {
	a, _ := NewMoney(100.25, "USD")
	b, _ := NewMoney(40.75, "USD")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(14100), sum.Cents())

	diff, err := a.Subtract(b)
	require.NoError(t, err)
	assert.Equal(t, int64(5950), diff.Cents())

	_, err = b.Subtract(a)
	var moneyErr *InvalidMoneyError
	assert.ErrorAs(t, err, &moneyErr, "negative result is a defined failure")

	doubled, err := a.MultiplyBy(2)
	require.NoError(t, err)
	assert.Equal(t, int64(20050), doubled.Cents())

	_, err = a.MultiplyBy(-1)
	assert.ErrorAs(t, err, &moneyErr)

	less, err := b.LessThan(a)
	require.NoError(t, err)
	assert.True(t, less)
}

func TestMoney_AddSubtractIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		aCents := rapid.Int64Range(0, 1_000_000_00).Draw(t, "a")
		bCents := rapid.Int64Range(0, 1_000_000_00).Draw(t, "b")

		a := moneyFromCents(aCents, "USD")
		b := moneyFromCents(bCents, "USD")

		sum, err := a.Add(b)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		back, err := sum.Subtract(b)
		if err != nil {
			t.Fatalf("subtract: %v", err)
		}
		if !back.Equal(a) {
			t.Fatalf("identity broken: %s != %s", back, a)
		}
	})
}
