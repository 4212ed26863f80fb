package retry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetryData_NextDelay(t *testing.T) {
	t.Parallel()
	rnd := &xorShift32{state: 19}
	data := newRetryData(2, 10, 40)
	// The immediate budget yields exact zeros.
	require.Equal(t, int64(0), data.nextDelayMillis(rnd))
	require.Equal(t, int64(0), data.nextDelayMillis(rnd))
	require.Equal(t, 0, data.ImmediateLeft)
	// Fibonacci growth saturates at the cap; draws stay in [0, cap).
	for i := 0; i < 1000; i++ {
		delay := data.nextDelayMillis(rnd)
		require.GreaterOrEqual(t, delay, int64(0))
		require.Less(t, delay, int64(40))
	}
	require.GreaterOrEqual(t, data.P2, int64(40))
}

func TestRetryData_FibonacciAdvances(t *testing.T) {
	t.Parallel()
	rnd := &xorShift32{state: 23}
	data := newRetryData(0, 10, 1000)
	for _, want := range []int64{20, 30, 50, 80, 130} {
		_ = data.nextDelayMillis(rnd)
		require.Equal(t, want, data.P2)
	}
}

func TestXorShift32_Deterministic(t *testing.T) {
	t.Parallel()
	a := &xorShift32{state: 42}
	b := &xorShift32{state: 42}
	for i := 0; i < 100; i++ {
		require.Equal(t, a.next(), b.next())
	}
}
