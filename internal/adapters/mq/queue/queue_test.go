package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/hoops/internal/domain/model"
)

func change(seq int64) model.Change {
	return model.Change{Op: model.ChangeInsert, GameID: 1, TeamID: 2, EventID: seq, Seq: seq}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if !q.Enqueue(ctx, change(1)) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.Seq != 1 {
		t.Errorf("expected seq 1, got %d", got.Seq)
	}
	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, change(1)) || !q.Enqueue(ctx, change(2)) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, change(3)) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
	if c := q.Capacity(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if q.Enqueue(ctx, change(1)) {
		t.Error("expected enqueue with cancelled context to fail")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				q.Enqueue(ctx, change(int64(id*100+j)))
			}
		}(i)
	}
	wg.Wait()

	if l := q.Len(); l != 500 {
		t.Fatalf("expected 500 queued changes, got %d", l)
	}

	out := q.Dequeue(ctx)
	seen := 0
	timeout := time.After(2 * time.Second)
	for seen < 500 {
		select {
		case <-out:
			seen++
		case <-timeout:
			t.Fatalf("only dequeued %d changes", seen)
		}
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	q.Enqueue(ctx, change(1))
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if q.Enqueue(ctx, change(2)) {
		t.Error("expected enqueue after close to fail")
	}

	out := q.Dequeue(ctx)
	if c, ok := <-out; !ok || c.Seq != 1 {
		t.Errorf("expected queued change to drain, got %v %v", c, ok)
	}
	if _, ok := <-out; ok {
		t.Error("expected dequeue channel to close after drain")
	}
}
