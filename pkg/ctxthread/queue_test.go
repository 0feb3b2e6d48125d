package ctxthread

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/dataflow/pkg/errors"
)

func TestDo_RunsOnQueue(t *testing.T) {
	q := New(nil)
	defer q.Close()

	ctx := context.Background()
	if q.OnThread(ctx) {
		t.Fatal("OnThread(background) = true, want false")
	}

	var onThread bool
	err := q.Do(ctx, func(ctx context.Context) error {
		onThread = q.OnThread(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if !onThread {
		t.Error("task context should be marked as on-thread")
	}
}

func TestDo_Serializes(t *testing.T) {
	q := New(nil)
	defer q.Close()

	// counter is deliberately unsynchronized; the queue serializes access.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), func(context.Context) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
}

func TestDo_NestedRunsInline(t *testing.T) {
	q := New(nil)
	defer q.Close()

	done := make(chan error, 1)
	go func() {
		done <- q.Do(context.Background(), func(ctx context.Context) error {
			return q.Do(ctx, func(context.Context) error { return nil })
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("nested Do() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nested Do() deadlocked")
	}
}

func TestDo_PropagatesErrorsAndPanics(t *testing.T) {
	q := New(nil)
	defer q.Close()

	want := errors.New(errors.ErrCodeInternal, "upload failed")
	if err := q.Do(context.Background(), func(context.Context) error { return want }); err != want {
		t.Errorf("Do() error = %v, want %v", err, want)
	}

	err := q.Do(context.Background(), func(context.Context) error { panic("lost context") })
	if !errors.Is(err, errors.ErrCodeInternal) {
		t.Errorf("Do() after panic error = %v, want %s", err, errors.ErrCodeInternal)
	}

	// The thread survives a panicking task.
	if err := q.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Errorf("Do() after panic error: %v", err)
	}
}

func TestDo_AfterClose(t *testing.T) {
	q := New(nil)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}

	err := q.Do(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, errors.ErrCodeClosed) {
		t.Errorf("Do() after Close error = %v, want %s", err, errors.ErrCodeClosed)
	}
}

func TestDo_CanceledContext(t *testing.T) {
	q := New(nil)
	defer q.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = q.Do(context.Background(), func(context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	defer close(block)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := q.Do(ctx, func(context.Context) error { return nil })
	if err != context.DeadlineExceeded {
		t.Errorf("Do() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestDo_WaitsForAcceptedTask(t *testing.T) {
	q := New(nil)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := false
	err := q.Do(ctx, func(context.Context) error {
		cancel()
		time.Sleep(10 * time.Millisecond)
		finished = true
		return nil
	})
	if err != nil {
		t.Errorf("Do() error = %v, want nil once the task ran", err)
	}
	if !finished {
		t.Error("Do() returned before the task finished")
	}
}
