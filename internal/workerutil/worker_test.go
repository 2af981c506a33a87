package workerutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHaltStopsGoroutine(t *testing.T) {
	var w Worker
	stopped := make(chan struct{})

	w.Go(func() {
		<-w.HaltCh()
		close(stopped)
	})

	w.Halt()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not observe halt")
	}
}

func TestWaitReturnsAfterGoroutinesExit(t *testing.T) {
	var w Worker
	done := make(chan struct{})

	w.Go(func() {
		close(done)
	})

	w.Wait()
	select {
	case <-done:
	default:
		t.Fatal("goroutine had not finished before Wait returned")
	}
}
