package work

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool(t *testing.T) {
	tests := []struct {
		name            string
		numWorkers      int
		taskChannelSize int
		expectError     bool
	}{
		{"valid pool", 5, 10, false},
		{"single worker", 1, 4, false},
		{"zero workers", 0, 10, true},
		{"negative workers", -1, 10, true},
		{"negative channel size", 5, -1, true},
		{"zero channel size", 5, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewWorkerPool[string](tt.numWorkers, tt.taskChannelSize)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if pool == nil {
				t.Error("Expected pool but got nil")
			}
		})
	}
}

func TestWorkerPoolBasicOperation(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[string](2, 5)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "test-pool")
	defer pool.Stop()

	var executedCount int64
	task, err := NewTask[string](
		func(ctx context.Context) (string, error) {
			atomic.AddInt64(&executedCount, 1)
			return "test result", nil
		},
		WithErrorHandler[string](func(err error) {
			t.Errorf("Unexpected error: %v", err)
		}),
		WithTimeout[string](5*time.Second),
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.AddTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	select {
	case result := <-pool.Results():
		if !result.IsSuccess() {
			t.Errorf("Task failed: %v", result.Error)
		}
		if result.Result != "test result" {
			t.Errorf("Expected 'test result', got '%s'", result.Result)
		}
		if atomic.LoadInt64(&executedCount) != 1 {
			t.Errorf("Expected 1 execution, got %d", executedCount)
		}
	case <-time.After(3 * time.Second):
		t.Error("Timeout waiting for result")
	}
}

func TestWorkerPoolIsolatesFailures(t *testing.T) {
	// One failing item must not prevent the remaining items from running;
	// this is the guarantee document emission relies on.
	ctx := context.Background()
	pool, err := NewWorkerPool[int](1, 10)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "isolation-test-pool")
	defer pool.Stop()

	boom := errors.New("no bytes obtainable")
	for i := 0; i < 3; i++ {
		n := i
		task, err := NewTask[int](
			func(ctx context.Context) (int, error) {
				if n == 1 {
					return 0, boom
				}
				return n, nil
			},
			WithID[int]("item-"+string(rune('a'+n))),
		)
		if err != nil {
			t.Fatal(err)
		}
		if err := pool.AddTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	var ok, failed int
	for i := 0; i < 3; i++ {
		select {
		case res := <-pool.Results():
			if res.IsSuccess() {
				ok++
			} else {
				if !errors.Is(res.Error, boom) {
					t.Errorf("unexpected error: %v", res.Error)
				}
				failed++
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for results")
		}
	}
	if ok != 2 || failed != 1 {
		t.Errorf("expected 2 successes and 1 failure, got %d/%d", ok, failed)
	}
}

func TestWorkerPoolTaskTimeout(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPoolWithConfig[struct{}](PoolConfig{
		NumWorkers:      1,
		TaskChannelSize: 1,
		TaskTimeout:     50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "timeout-test-pool")
	defer pool.Stop()

	task, err := NewTask[struct{}](
		func(ctx context.Context) (struct{}, error) {
			select {
			case <-ctx.Done():
				return struct{}{}, ctx.Err()
			case <-time.After(5 * time.Second):
				return struct{}{}, nil
			}
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.AddTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	select {
	case result := <-pool.Results():
		if !errors.Is(result.Error, ErrTaskTimeout) {
			t.Errorf("Expected ErrTaskTimeout, got %v", result.Error)
		}
	case <-time.After(3 * time.Second):
		t.Error("Timeout waiting for result")
	}
}

func TestWorkerPoolStopPreventsNewTasks(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[struct{}](1, 1)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "stop-test-pool")
	pool.Stop()

	task, err := NewTask[struct{}](
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, nil
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.AddTask(ctx, task); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped, got %v", err)
	}
}
