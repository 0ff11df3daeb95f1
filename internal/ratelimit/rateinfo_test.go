package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateInfoDisabledRefusesAdmission(t *testing.T) {
	r := NewRateInfo(5)
	assert.True(t, r.Disabled())
	assert.False(t, r.CanStart(0, 1))
}

func TestRateInfoCanStartWithinLimitAndBudget(t *testing.T) {
	r := NewRateInfo(5)
	r.SetRate(10)
	assert.True(t, r.CanStart(0, 10))
	assert.False(t, r.CanStart(0, 11))
}

func TestRateInfoUpdateBudgetAccumulatesDeficit(t *testing.T) {
	r := NewRateInfo(5)
	r.SetRate(10)
	r.UpdateBudget(0, false, time.Duration(WindowSeconds*float64(time.Second)))
	assert.True(t, r.Budget() > 0)
	assert.True(t, r.CanStart(10, 1), "accumulated budget should admit beyond the raw limit")
}

func TestRateInfoUpdateBudgetCapsOnEmptyQueue(t *testing.T) {
	r := NewRateInfo(5)
	r.SetRate(1000)
	r.UpdateBudget(0, true, 10*time.Second)
	assert.LessOrEqual(t, r.Budget(), MaxEmptyQueueBudget)
}

func TestRateInfoDisableZeroesRate(t *testing.T) {
	r := NewRateInfo(5)
	r.SetRate(10)
	r.Disable()
	assert.True(t, r.Disabled())
	assert.Equal(t, float64(0), r.Limit())
}
