package sched

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterval_FiresUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	fired := make(chan struct{}, 1)
	h := func(context.Context) error {
		if calls.Add(1) == 3 {
			fired <- struct{}{}
		}
		return nil
	}

	trigger := Interval{
		Name:   "test",
		Period: time.Millisecond,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	done := make(chan struct{})
	go func() {
		trigger.Run(ctx, h)
		close(done)
	}()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never reached three invocations")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger did not stop on cancellation")
	}
}

func TestInterval_KeepsTickingAfterHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	recovered := make(chan struct{}, 1)
	h := func(context.Context) error {
		n := calls.Add(1)
		if n == 1 {
			return errors.New("transient")
		}
		if n == 2 {
			recovered <- struct{}{}
		}
		return nil
	}

	trigger := Interval{
		Name:   "flaky",
		Period: time.Millisecond,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	go trigger.Run(ctx, h)

	select {
	case <-recovered:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger stalled after a handler error")
	}
}

func TestGroup_WaitsForAllTriggers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var group Group
	var runs atomic.Int64
	h := func(context.Context) error {
		runs.Add(1)
		return nil
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	group.Go(ctx, Interval{Name: "a", Period: time.Millisecond, Log: log}, h)
	group.Go(ctx, Interval{Name: "b", Period: time.Millisecond, Log: log}, h)

	time.Sleep(20 * time.Millisecond)
	cancel()

	waited := make(chan struct{})
	go func() {
		group.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("group did not drain after cancellation")
	}
	assert.Positive(t, runs.Load())
}
