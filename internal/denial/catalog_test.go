package denial_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridianhealth/claimsim/internal/denial"
)

func TestPickRandomReturnsKnownReason(t *testing.T) {
	t.Run("every draw is a populated DenialInfo", func(t *testing.T) {
		catalog := denial.New()
		for i := 0; i < 20; i++ {
			r := catalog.PickRandom()
			assert.NotEmpty(t, r.Code)
			assert.NotEmpty(t, r.Category)
		}
	})
}

func TestPickByCategoryStaysWithinCategory(t *testing.T) {
	t.Run("returned reason matches requested category", func(t *testing.T) {
		catalog := denial.New()
		for i := 0; i < 20; i++ {
			r := catalog.PickByCategory("CODING")
			assert.Equal(t, "CODING", r.Category)
		}
	})
}

func TestPickByCategoryFallsBackOnUnknown(t *testing.T) {
	t.Run("unknown category still returns a valid reason", func(t *testing.T) {
		catalog := denial.New()
		r := catalog.PickByCategory("NOT_A_REAL_CATEGORY")
		assert.NotEmpty(t, r.Code)
	})
}
