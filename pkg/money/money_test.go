package money_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridianhealth/claimsim/pkg/money"
)

func TestAmountArithmetic(t *testing.T) {
	t.Run("add and sub round-trip", func(t *testing.T) {
		a := money.New(10.50)
		b := money.New(2.25)
		assert.Equal(t, "12.75", a.Add(b).String())
		assert.Equal(t, "8.25", a.Sub(b).String())
	})

	t.Run("mul by units", func(t *testing.T) {
		a := money.New(19.99)
		assert.Equal(t, "59.97", a.Mul(3).RoundCents().String())
	})

	t.Run("negative and abs", func(t *testing.T) {
		a := money.New(-5)
		assert.True(t, a.IsNegative())
		assert.Equal(t, "5.00", a.Abs().String())
	})
}

func TestAmountRounding(t *testing.T) {
	t.Run("half away from zero", func(t *testing.T) {
		assert.Equal(t, "1.24", money.New(1.235).RoundCents().String())
		assert.Equal(t, "-1.24", money.New(-1.235).RoundCents().String())
	})
}

func TestAmountJSON(t *testing.T) {
	t.Run("marshal unmarshal preserves value", func(t *testing.T) {
		a := money.New(123.45)
		data, err := a.MarshalJSON()
		assert.NoError(t, err)

		var out money.Amount
		assert.NoError(t, out.UnmarshalJSON(data))
		assert.Equal(t, 0, a.Cmp(out))
	})
}

func TestMaxZero(t *testing.T) {
	t.Run("clamps negative to zero", func(t *testing.T) {
		assert.Equal(t, 0, money.MaxZero(money.New(-3)).Cmp(money.Zero))
		assert.Equal(t, 0, money.MaxZero(money.New(3)).Cmp(money.New(3)))
	})
}
