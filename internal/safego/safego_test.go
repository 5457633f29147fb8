package safego

import (
	"testing"
	"time"
)

func waitOrFail(t *testing.T, done <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error(msg)
	}
}

func TestGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})
	Go("test-loop", func() {
		close(done)
	})
	waitOrFail(t, done, "goroutine never ran")
}

func TestGo_SwallowsPanic(t *testing.T) {
	done := make(chan struct{})
	Go("panicky-loop", func() {
		defer close(done)
		panic("deliberate")
	})
	// If the panic escaped the recover, the test binary would have crashed
	// before reaching this point.
	waitOrFail(t, done, "goroutine never completed after panic")
}

func TestGo_PanicDoesNotBlockSubsequentLaunches(t *testing.T) {
	first := make(chan struct{})
	Go("first", func() {
		defer close(first)
		panic("boom")
	})
	waitOrFail(t, first, "first goroutine never completed")

	second := make(chan struct{})
	Go("second", func() { close(second) })
	waitOrFail(t, second, "second goroutine never ran")
}
