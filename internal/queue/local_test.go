package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
)

func TestLocalQueueDeliversAndReturnsHandle(t *testing.T) {
	q := NewLocalQueue(4, 3, nil)
	handle, err := q.Enqueue(context.Background(), domain.QueueMessage{JobID: "j1", Kind: domain.JobKindImage})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if handle == "" {
		t.Fatal("expected a handle")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan string, 1)
	go q.Consume(ctx, func(ctx context.Context, m domain.QueueMessage) error {
		got <- m.JobID
		return nil
	})
	select {
	case id := <-got:
		if id != "j1" {
			t.Fatalf("job id = %q, want j1", id)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestLocalQueueFullAndClosed(t *testing.T) {
	q := NewLocalQueue(1, 3, nil)
	ctx := context.Background()
	if _, err := q.Enqueue(ctx, domain.QueueMessage{JobID: "a"}); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if _, err := q.Enqueue(ctx, domain.QueueMessage{JobID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	q.Close()
	if _, err := q.Enqueue(ctx, domain.QueueMessage{JobID: "c"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestLocalQueueRedeliversThenDLQ(t *testing.T) {
	q := NewLocalQueue(4, 3, nil)
	q.retryDelay = time.Millisecond
	q.Enqueue(context.Background(), domain.QueueMessage{JobID: "j1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var (
		mu       sync.Mutex
		attempts []int
	)
	go q.Consume(ctx, func(ctx context.Context, m domain.QueueMessage) error {
		mu.Lock()
		attempts = append(attempts, m.Attempt)
		mu.Unlock()
		return errors.New("store unreachable")
	})

	deadline := time.Now().Add(2 * time.Second)
	for len(q.DLQ()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("message never reached the DLQ")
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 || attempts[0] != 0 || attempts[2] != 2 {
		t.Fatalf("attempts = %v, want [0 1 2]", attempts)
	}
}

func TestNewSelectsLocal(t *testing.T) {
	q, err := New(context.Background(), &infra.Config{QueueDriver: "local", QueueBufferSize: 2}, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, ok := q.(*LocalQueue); !ok {
		t.Fatalf("queue = %T, want *LocalQueue", q)
	}
	if _, err := New(context.Background(), &infra.Config{QueueDriver: "sqs"}, nil); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
