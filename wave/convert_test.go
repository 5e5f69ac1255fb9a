package wave

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestADCToVolts_Linearity(t *testing.T) {
	const factor = 1.5625e-06

	assert.InDelta(t, 0, ADCToVolts(0, factor), 1e-15)
	assert.InDelta(t, factor, ADCToVolts(1, factor), 1e-15)
	assert.InDelta(t, -factor, ADCToVolts(-1, factor), 1e-15)
	assert.InDelta(t, 32767*factor, ADCToVolts(32767, factor), 1e-12)
	assert.InDelta(t, -32768*factor, ADCToVolts(-32768, factor), 1e-12)

	// doubling the code doubles the voltage
	assert.InDelta(t, 2*ADCToVolts(100, factor), ADCToVolts(200, factor), 1e-15)
}

func TestADCToEUFactor(t *testing.T) {
	assert.InDelta(t, 2.44140625e-5, ADCToEUFactor(1.5625e-06, 1e7), 1e-18)
}

func TestTicksToSeconds(t *testing.T) {
	assert.InDelta(t, 0.5, TicksToSeconds(1_000_000, 2_000_000), 1e-12)
	assert.InDelta(t, 0, TicksToSeconds(0, 2_000_000), 1e-12)
}
