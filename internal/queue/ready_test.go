package queue

import (
	"context"
	"testing"
	"time"

	"github.com/dronefleet/orchestrator/internal/model"
)

func TestReadyQueueOrdersByPriorityThenFIFO(t *testing.T) {
	q := NewReadyQueue(10)
	ctx := context.Background()

	low := model.Task{CommandID: "low", Priority: model.PriorityLow}
	high := model.Task{CommandID: "high", Priority: model.PriorityHigh}
	normal1 := model.Task{CommandID: "normal1", Priority: model.PriorityNormal}
	normal2 := model.Task{CommandID: "normal2", Priority: model.PriorityNormal}

	q.Enqueue(ctx, low)
	q.Enqueue(ctx, normal1)
	q.Enqueue(ctx, normal2)
	q.Enqueue(ctx, high)

	order := []string{}
	for i := 0; i < 4; i++ {
		task, ok := q.Dequeue(ctx)
		if !ok {
			t.Fatal("unexpected closed queue")
		}
		order = append(order, task.CommandID)
	}

	want := []string{"high", "normal1", "normal2", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestReadyQueueEnqueueBlocksWhenFull(t *testing.T) {
	q := NewReadyQueue(1)
	ctx := context.Background()

	if err := q.Enqueue(ctx, model.Task{CommandID: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(ctx, model.Task{CommandID: "b"})
	}()

	select {
	case <-done:
		t.Fatal("enqueue on a full queue should block")
	case <-time.After(20 * time.Millisecond):
	}

	if _, ok := q.Dequeue(ctx); !ok {
		t.Fatal("unexpected closed queue")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("enqueue never unblocked after dequeue freed capacity")
	}
}

func TestReadyQueueEnqueueRespectsContextCancellation(t *testing.T) {
	q := NewReadyQueue(1)
	ctx, cancel := context.WithCancel(context.Background())

	q.Enqueue(context.Background(), model.Task{CommandID: "a"})

	errCh := make(chan error, 1)
	go func() { errCh <- q.Enqueue(ctx, model.Task{CommandID: "b"}) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected context cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("enqueue never returned after context cancellation")
	}
}

func TestReadyQueueCompleteDrainsThenReturnsFalse(t *testing.T) {
	q := NewReadyQueue(10)
	ctx := context.Background()
	q.Enqueue(ctx, model.Task{CommandID: "a"})

	q.Complete()

	if _, ok := q.Dequeue(ctx); !ok {
		t.Fatal("expected remaining item to drain before closure is observed")
	}
	if _, ok := q.Dequeue(ctx); ok {
		t.Fatal("expected Dequeue to return false once drained and completed")
	}
}
