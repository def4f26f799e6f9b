package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubTask struct {
	val   int
	err   error
	delay time.Duration
}

func (s stubTask) Execute(ctx context.Context) (int, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return s.val, s.err
}

func TestFutureWait(t *testing.T) {
	f := Go[int](context.Background(), stubTask{val: 42})
	got, err := f.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestFutureWaitRepeatable(t *testing.T) {
	f := Go[int](context.Background(), stubTask{val: 7})
	for i := 0; i < 3; i++ {
		got, err := f.Wait()
		if err != nil || got != 7 {
			t.Fatalf("wait %d: got (%d, %v), want (7, nil)", i, got, err)
		}
	}
}

func TestFutureErrorPropagatesUnchanged(t *testing.T) {
	want := errors.New("task broke")
	f := Go[int](context.Background(), stubTask{err: want})
	_, err := f.Wait()
	if !errors.Is(err, want) {
		t.Fatalf("got %v, want %v", err, want)
	}
}

func TestFutureHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := Go[int](ctx, stubTask{val: 1, delay: time.Minute})
	cancel()
	_, err := f.Wait()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestRunBlocksForResult(t *testing.T) {
	got, err := Run[int](stubTask{val: 9, delay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 9 {
		t.Fatalf("got %d, want 9", got)
	}
}

func TestRunPropagatesError(t *testing.T) {
	want := errors.New("sync task broke")
	_, err := Run[int](stubTask{err: want})
	if !errors.Is(err, want) {
		t.Fatalf("got %v, want %v", err, want)
	}
}
