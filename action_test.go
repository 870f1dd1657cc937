package cotask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionNotifyAllWakesEveryWaiter(t *testing.T) {
	k, _ := newTestKernel(t)
	act := k.NewAction()

	const n = 3
	woken := make([]bool, n)
	tasks := make([]*Task, n)
	for i := 0; i < n; i++ {
		i := i
		tasks[i] = k.Spawn("waiter", func(t *Task) {
			act.Wait(t)
			woken[i] = true
			t.InfiniteSleep(false)
		})
	}

	stepUntil(t, k, 16, func() bool { return act.Waiting() == n })
	for _, w := range woken {
		assert.False(t, w)
	}

	act.NotifyAll()
	stepUntil(t, k, 16, func() bool {
		for _, w := range woken {
			if !w {
				return false
			}
		}
		return true
	})
	assert.Equal(t, 0, act.Waiting())
}

func TestActionRemoveWaiterOnDelete(t *testing.T) {
	k, _ := newTestKernel(t)
	act := k.NewAction()
	task := k.Spawn("doomed", func(t *Task) { act.Wait(t) })

	stepUntil(t, k, 8, func() bool { return act.Waiting() == 1 })
	k.Delete(task)
	assert.Equal(t, 0, act.Waiting())
}
