package cotask

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cotaskio/cotask/fakeport"
)

// newTestKernel builds a Kernel over a fresh fakeport.Port, registering
// cleanup. Every kernel carries a built-in idle task, which always occupies
// the first Step() of any test (see the ring-insertion comment on
// runnableRing.insert) — tests drive the scheduler with stepUntil rather
// than assuming a fixed number of Step calls reaches a particular task.
func newTestKernel(t *testing.T, opts ...Option) (*Kernel, *fakeport.Port) {
	t.Helper()
	port := fakeport.New()
	k, err := New(port, append([]Option{WithHeap(8, 16)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k, port
}

// stepUntil advances the scheduler one quantum at a time until cond reports
// true, failing the test if it does not do so within max steps.
func stepUntil(t *testing.T, k *Kernel, max int, cond func() bool) {
	t.Helper()
	for i := 0; i < max; i++ {
		if cond() {
			return
		}
		k.Step()
	}
	if !cond() {
		t.Fatalf("condition not met after %d scheduler steps", max)
	}
}
