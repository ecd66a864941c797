package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestOpenValidation(t *testing.T) {
	_, err := Open(d("-1"), decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidTotal)

	_, err = Open(d("100"), d("-5"))
	require.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = Open(d("100"), d("150"))
	require.ErrorIs(t, err, ErrOverpayment)

	l, err := Open(d("200000"), d("50000"))
	require.NoError(t, err)
	require.True(t, l.Balance().Equal(d("150000")))
	require.False(t, l.Cleared())
}

func TestApplySequence(t *testing.T) {
	l, err := Open(d("200000"), d("50000"))
	require.NoError(t, err)

	l, err = l.Apply(d("150000"))
	require.NoError(t, err)
	require.True(t, l.Balance().IsZero())
	require.True(t, l.Cleared())

	_, err = l.Apply(d("1"))
	require.ErrorIs(t, err, ErrOverpayment)
	// Receiver untouched by the failed apply.
	require.True(t, l.Cleared())
}

func TestApplyRejectsNonPositive(t *testing.T) {
	l, err := Open(d("100"), decimal.Zero)
	require.NoError(t, err)

	_, err = l.Apply(decimal.Zero)
	require.ErrorIs(t, err, ErrNonPositiveAmount)
	_, err = l.Apply(d("-10"))
	require.ErrorIs(t, err, ErrNonPositiveAmount)
}

func TestBalanceNeverNegative(t *testing.T) {
	l, err := Open(d("100"), decimal.Zero)
	require.NoError(t, err)
	for _, amt := range []string{"30", "30", "30"} {
		var applyErr error
		l, applyErr = l.Apply(d(amt))
		require.NoError(t, applyErr)
	}
	// 10 left; 20 must be rejected, 10 accepted.
	_, err = l.Apply(d("20"))
	require.ErrorIs(t, err, ErrOverpayment)
	l, err = l.Apply(d("10"))
	require.NoError(t, err)
	require.False(t, l.Balance().IsNegative())
	require.True(t, l.Cleared())
}

func TestPeriodsLeft(t *testing.T) {
	require.Equal(t, 5, PeriodsLeft(d("500000"), d("100000"), 5))
	require.Equal(t, 3, PeriodsLeft(d("250000"), d("100000"), 5))
	require.Equal(t, 0, PeriodsLeft(decimal.Zero, d("100000"), 5))
	// Clamped to total periods even if balance implies more.
	require.Equal(t, 5, PeriodsLeft(d("900000"), d("100000"), 5))
	require.Equal(t, 0, PeriodsLeft(d("100"), decimal.Zero, 5))
}
