package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	// Register should be safe to call multiple times
	assert.NotPanics(t, Register)
	assert.NotPanics(t, Register)
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(bookingsCreated)
	IncBookingCreated()
	assert.Equal(t, before+1, testutil.ToFloat64(bookingsCreated))

	before = testutil.ToFloat64(pollCycles)
	IncPollCycle()
	assert.Equal(t, before+1, testutil.ToFloat64(pollCycles))

	before = testutil.ToFloat64(paymentsInitiated)
	IncPaymentInitiated()
	assert.Equal(t, before+1, testutil.ToFloat64(paymentsInitiated))
}

func TestLabelledCountersIncrementPerLabel(t *testing.T) {
	succeeded := paymentOutcomes.WithLabelValues("succeeded")
	timedOut := paymentOutcomes.WithLabelValues("timed_out")

	before := testutil.ToFloat64(succeeded)
	other := testutil.ToFloat64(timedOut)
	IncPaymentOutcome("succeeded")

	assert.Equal(t, before+1, testutil.ToFloat64(succeeded))
	assert.Equal(t, other, testutil.ToFloat64(timedOut))

	assert.NotPanics(t, func() { IncHTTP("test_endpoint") })
}
