// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

package heartbeat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fibTask builds the recursive fork/join Fibonacci task.
func fibTask(n int) *Task {
	return NewTask("fib", func(tc *TaskContext) (interface{}, error) {
		if n < 2 {
			return n, nil
		}
		left := tc.Fork(fibTask(n - 1))
		right, err := tc.Invoke(fibTask(n - 2))
		if err != nil {
			return nil, err
		}
		l, err := tc.Join(left)
		if err != nil {
			return nil, err
		}
		return l.(int) + right.(int), nil
	})
}

// sumTask builds a divide-and-conquer sum over the inclusive range
// [lo, hi], splitting down to the given threshold.
func sumTask(lo, hi, threshold int) *Task {
	return NewTask("sum", func(tc *TaskContext) (interface{}, error) {
		if hi-lo+1 <= threshold {
			total := 0
			for i := lo; i <= hi; i++ {
				total += i
			}
			return total, nil
		}
		mid := (lo + hi) / 2
		left := tc.Fork(sumTask(lo, mid, threshold))
		right, err := tc.Invoke(sumTask(mid+1, hi, threshold))
		if err != nil {
			return nil, err
		}
		l, err := tc.Join(left)
		if err != nil {
			return nil, err
		}
		return l.(int) + right.(int), nil
	})
}

// newExecutor builds an executor, failing the test on a bad
// configuration.
func newExecutor(t *testing.T, config Config) *Executor {
	ex, err := New(config)
	require.NoError(t, err)
	return ex
}

// promoteNeverConfig makes heartbeats so rare that no promotion can
// occur within a test run.
func promoteNeverConfig() Config {
	c := NewConfig()
	c.HeartbeatPeriod = time.Hour
	c.PromotionCost = time.Millisecond
	return c
}

// promoteAlwaysConfig makes every heartbeat check due immediately.
func promoteAlwaysConfig() Config {
	c := NewConfig()
	c.HeartbeatPeriod = 2 * time.Nanosecond
	c.PromotionCost = time.Nanosecond
	return c
}

func TestExecutorInvalidConfig(t *testing.T) {
	c := NewConfig()
	c.HeartbeatPeriod = c.PromotionCost
	_, err := New(c)
	assert.Equal(t, ErrPeriodNotAboveCost, err)
}

func TestFib(t *testing.T) {
	ex := newExecutor(t, NewConfig())
	cases := map[int]int{0: 0, 1: 1, 10: 55, 15: 610, 20: 6765}
	for n, expected := range cases {
		result, err := ex.Submit(context.Background(), fibTask(n))
		if assert.NoError(t, err, "fib(%d)", n) {
			assert.Equal(t, expected, result, "fib(%d)", n)
		}
	}
}

func TestSum(t *testing.T) {
	ex := newExecutor(t, NewConfig())

	result, err := ex.Submit(context.Background(), sumTask(1, 10, 2))
	if assert.NoError(t, err) {
		assert.Equal(t, 55, result)
	}

	result, err = ex.Submit(context.Background(), sumTask(1, 1000, 50))
	if assert.NoError(t, err) {
		assert.Equal(t, 500500, result)
	}
}

// The result of a submission is independent of whether zero, some, or
// all forks were promoted.
func TestPromotionTransparency(t *testing.T) {
	configs := map[string]Config{
		"never":   promoteNeverConfig(),
		"default": NewConfig(),
		"always":  promoteAlwaysConfig(),
	}
	for name, config := range configs {
		ex := newExecutor(t, config)
		result, err := ex.Submit(context.Background(), fibTask(15))
		if assert.NoError(t, err, "config %q", name) {
			assert.Equal(t, 610, result, "config %q", name)
		}
	}
}

func TestPromotionsHappen(t *testing.T) {
	ex := newExecutor(t, promoteAlwaysConfig())
	result, err := ex.Submit(context.Background(), fibTask(15))
	require.NoError(t, err)
	assert.Equal(t, 610, result)

	assert.True(t, ex.AwaitTermination(5*time.Second))
	stats := ex.Stats()
	assert.True(t, stats.Promotions > 0, "no forks were promoted")
	assert.Equal(t, stats.Promotions, stats.WorkersSpawned)
	assert.True(t, stats.Operations >= stats.Polls)
	assert.True(t, stats.Polls >= stats.Promotions)
}

func TestNoPromotionsWithoutHeartbeat(t *testing.T) {
	ex := newExecutor(t, promoteNeverConfig())
	result, err := ex.Submit(context.Background(), fibTask(15))
	require.NoError(t, err)
	assert.Equal(t, 610, result)
	assert.Equal(t, uint64(0), ex.Stats().Promotions)
}

// A failing compute propagates its message verbatim through Submit.
func TestTaskFailure(t *testing.T) {
	ex := newExecutor(t, NewConfig())
	boom := errors.New("the weasels have escaped")
	result, err := ex.Submit(context.Background(), NewTask("boom", func(tc *TaskContext) (interface{}, error) {
		return nil, boom
	}))
	assert.Nil(t, result)
	assert.Equal(t, boom, err)
}

// A failure in a promoted child is re-raised, unchanged, at the join.
func TestPromotedTaskFailure(t *testing.T) {
	ex := newExecutor(t, promoteAlwaysConfig())
	boom := errors.New("remote failure")
	_, err := ex.Submit(context.Background(), NewTask("parent", func(tc *TaskContext) (interface{}, error) {
		// Let a full heartbeat period elapse so the fork promotes.
		time.Sleep(time.Millisecond)
		child := tc.Fork(NewTask("child", func(tc *TaskContext) (interface{}, error) {
			return nil, boom
		}))
		require.NotNil(t, child.promoted, "child was not promoted")
		return tc.Join(child)
	}))
	assert.Equal(t, boom, err)
}

// A panic inside a compute is recovered into the task's error slot.
func TestTaskPanic(t *testing.T) {
	ex := newExecutor(t, NewConfig())
	_, err := ex.Submit(context.Background(), NewTask("panic", func(tc *TaskContext) (interface{}, error) {
		panic("lost the plot")
	}))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "lost the plot")
	}
}

// Cancelling the submission context interrupts a join waiting on a
// promoted child; the child still runs to completion.
func TestJoinInterrupted(t *testing.T) {
	ex := newExecutor(t, promoteAlwaysConfig())
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := ex.Submit(ctx, NewTask("parent", func(tc *TaskContext) (interface{}, error) {
		time.Sleep(time.Millisecond)
		child := tc.Fork(NewTask("child", func(tc *TaskContext) (interface{}, error) {
			<-release
			return "late", nil
		}))
		require.NotNil(t, child.promoted, "child was not promoted")
		cancel()
		return tc.Join(child)
	}))
	assert.True(t, errors.Is(err, ErrInterrupted), "expected ErrInterrupted, got %v", err)

	close(release)
	assert.True(t, ex.AwaitTermination(5*time.Second))
}

func TestSubmitAsync(t *testing.T) {
	ex := newExecutor(t, NewConfig())
	fut, err := ex.SubmitAsync(context.Background(), fibTask(10))
	require.NoError(t, err)

	result, err := fut.Wait(context.Background())
	if assert.NoError(t, err) {
		assert.Equal(t, 55, result)
	}
}

func TestShutdownRejectsSubmissions(t *testing.T) {
	ex := newExecutor(t, NewConfig())
	ex.Shutdown()

	_, err := ex.Submit(context.Background(), fibTask(5))
	assert.Equal(t, ErrShutdown, err)

	_, err = ex.SubmitAsync(context.Background(), fibTask(5))
	assert.Equal(t, ErrShutdown, err)
}

// Tasks in flight at shutdown run to completion.
func TestShutdownDrainsInFlight(t *testing.T) {
	ex := newExecutor(t, NewConfig())
	release := make(chan struct{})
	fut, err := ex.SubmitAsync(context.Background(), NewTask("slow", func(tc *TaskContext) (interface{}, error) {
		<-release
		return "done", nil
	}))
	require.NoError(t, err)

	ex.Shutdown()
	assert.False(t, ex.AwaitTermination(10*time.Millisecond))

	close(release)
	assert.True(t, ex.AwaitTermination(5*time.Second))

	result, err := fut.Wait(context.Background())
	if assert.NoError(t, err) {
		assert.Equal(t, "done", result)
	}
}

func TestForkContractViolations(t *testing.T) {
	ex := newExecutor(t, promoteNeverConfig())
	_, err := ex.Submit(context.Background(), NewTask("violations", func(tc *TaskContext) (interface{}, error) {
		assert.PanicsWithValue(t, ErrNilTask, func() {
			tc.Fork(nil)
		})

		child := tc.Fork(NewTask("child", func(tc *TaskContext) (interface{}, error) {
			return nil, nil
		}))
		assert.PanicsWithValue(t, ErrTaskReused, func() {
			tc.Fork(child)
		})

		result, err := tc.Join(child)

		// Joining a task that was never forked does not match the
		// head of the tracker (which is empty by now).
		assert.PanicsWithValue(t, ErrUnbalancedJoin, func() {
			stranger := NewTask("stranger", func(tc *TaskContext) (interface{}, error) {
				return nil, nil
			})
			_, _ = tc.Join(stranger)
		})

		return result, err
	}))
	assert.NoError(t, err)
}

func TestSubmitReuse(t *testing.T) {
	ex := newExecutor(t, NewConfig())
	task := fibTask(5)
	_, err := ex.Submit(context.Background(), task)
	require.NoError(t, err)

	assert.PanicsWithValue(t, ErrTaskReused, func() {
		_, _ = ex.Submit(context.Background(), task)
	})
}

func TestExecutorStats(t *testing.T) {
	config := NewConfig()
	config.StatsEnabled = true
	ex := newExecutor(t, config)

	_, err := ex.Submit(context.Background(), sumTask(1, 1000, 50))
	require.NoError(t, err)
	assert.True(t, ex.AwaitTermination(5*time.Second))

	stats := ex.Stats()
	assert.Equal(t, uint64(1), stats.TasksSubmitted)
	assert.True(t, stats.TasksCompleted >= 1)
	assert.True(t, stats.Operations > 0)
	assert.Equal(t, int64(0), stats.ActiveWorkers)
}

func TestStatsDisabled(t *testing.T) {
	config := NewConfig()
	config.StatsEnabled = false
	ex := newExecutor(t, config)

	_, err := ex.Submit(context.Background(), fibTask(10))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ex.Stats().Operations)
}

// Join on an unpopped frame must find the just-forked child at the
// head; a deeper fork joined out of order is unbalanced.  Exercised
// via a correct program here: forked children joined newest-first.
func TestJoinOrderNewestFirst(t *testing.T) {
	ex := newExecutor(t, promoteNeverConfig())
	result, err := ex.Submit(context.Background(), NewTask("parent", func(tc *TaskContext) (interface{}, error) {
		a := tc.Fork(NewTask("a", func(tc *TaskContext) (interface{}, error) { return 1, nil }))
		b := tc.Fork(NewTask("b", func(tc *TaskContext) (interface{}, error) { return 2, nil }))
		c := tc.Fork(NewTask("c", func(tc *TaskContext) (interface{}, error) { return 4, nil }))

		total := 0
		for _, child := range []*Task{c, b, a} {
			v, err := tc.Join(child)
			if err != nil {
				return nil, err
			}
			total += v.(int)
		}
		return total, nil
	}))
	if assert.NoError(t, err) {
		assert.Equal(t, 7, result)
	}
}
