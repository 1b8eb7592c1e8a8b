package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_freshness_clock_starts_at_zero(t *testing.T) {
	clock := freshnessClock{}
	assert.Equal(t, int64(0), clock.lastUpdate())
}

func Test_freshness_clock_touch_advances(t *testing.T) {
	clock := freshnessClock{}
	before := time.Now().UnixNano() / int64(time.Millisecond)

	clock.touch()

	assert.True(t, clock.lastUpdate() >= before)
}

func Test_freshness_clock_never_goes_backwards(t *testing.T) {
	clock := freshnessClock{}
	clock.touch()

	last := clock.lastUpdate()
	for i := 0; i < 100; i++ {
		clock.touch()
		assert.True(t, clock.lastUpdate() >= last)
		last = clock.lastUpdate()
	}
}
